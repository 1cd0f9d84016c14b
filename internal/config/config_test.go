package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `
ctis:
  url: https://ctis.example.org/
  username: bridge
  password: from-file
recorded_future:
  token: rf-file-token
slack:
  url: https://hooks.slack.com/services/T000/B000/XXX
mappings:
  entities:
    IpAddress:
      type: indicators
      param: pattern
      description: description
    Company:
      type: identities
      param: name
      description: description
      class: organization
  identities:
    Acme: Acme Corporation
sources:
  - Recorded Future
  - OSINT
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.CTIS.URL != "https://ctis.example.org" {
		t.Errorf("Expected trailing slash trimmed, got %q", cfg.CTIS.URL)
	}
	if cfg.CTIS.Timeout != 60*time.Second {
		t.Errorf("Expected default timeout, got %v", cfg.CTIS.Timeout)
	}
	if cfg.RecordedFuture.Limit != 100 {
		t.Errorf("Expected default limit 100, got %d", cfg.RecordedFuture.Limit)
	}

	ip, ok := cfg.Mappings.Entities.Lookup("IpAddress")
	if !ok || ip.Collection != "indicators" || ip.ValueField != "pattern" || ip.DescriptionField != "description" {
		t.Errorf("Unexpected IpAddress mapping: %+v", ip)
	}
	if company := cfg.Mappings.Entities["Company"]; company.Class != "organization" {
		t.Errorf("Expected organization class, got %q", company.Class)
	}
	if cfg.Mappings.Identities["Acme"] != "Acme Corporation" {
		t.Errorf("Expected identity alias, got %v", cfg.Mappings.Identities)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0] != "Recorded Future" {
		t.Errorf("Unexpected sources: %v", cfg.Sources)
	}
	if cfg.Ledger.Backend != "memory" {
		t.Errorf("Expected memory ledger by default, got %q", cfg.Ledger.Backend)
	}
	if cfg.MissingEntitiesFile != "/files/missing_entities.txt" {
		t.Errorf("Unexpected side file default: %q", cfg.MissingEntitiesFile)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("CTIS_PASSWORD", "from-env")
	t.Setenv("RF_TOKEN", "rf-env-token")
	t.Setenv("PUSHGATEWAY_URL", "http://pushgateway:9091")

	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.CTIS.Password != "from-env" {
		t.Errorf("Expected env password, got %q", cfg.CTIS.Password)
	}
	if cfg.RecordedFuture.Token != "rf-env-token" {
		t.Errorf("Expected env token, got %q", cfg.RecordedFuture.Token)
	}
	if cfg.Metrics.PushgatewayURL != "http://pushgateway:9091" {
		t.Errorf("Expected env pushgateway, got %q", cfg.Metrics.PushgatewayURL)
	}
}

func TestParse_MissingRequired(t *testing.T) {
	_, err := Parse([]byte("mappings:\n  entities:\n    Broken: {param: x}\n"))
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"ctis.url", "ctis.username", "ctis.password", "recorded_future.token", "mappings.entities.Broken.type"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %s, got %v", want, err)
		}
	}
}

func TestParse_LedgerBackends(t *testing.T) {
	tests := []struct {
		name    string
		ledger  string
		wantErr bool
	}{
		{"bolt gets default path", "ledger:\n  backend: bolt\n", false},
		{"postgres needs url", "ledger:\n  backend: postgres\n", true},
		{"redis", "ledger:\n  backend: redis\n", false},
		{"unknown", "ledger:\n  backend: etcd\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(sample + tt.ledger))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if tt.ledger == "ledger:\n  backend: bolt\n" && cfg.Ledger.Path != "/files/ledger.db" {
				t.Errorf("Expected default bolt path, got %q", cfg.Ledger.Path)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CTIS.Username != "bridge" {
		t.Errorf("Expected username from file, got %q", cfg.CTIS.Username)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("BRIDGE_CONFIG", "")
	if Path() != DefaultPath {
		t.Errorf("Expected default path, got %q", Path())
	}
	t.Setenv("BRIDGE_CONFIG", "/etc/bridge.yml")
	if Path() != "/etc/bridge.yml" {
		t.Errorf("Expected env path, got %q", Path())
	}
}
