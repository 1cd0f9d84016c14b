// Package config loads the bridge configuration: a YAML file with the
// mapping tables, plus secrets and endpoints overridable from the
// environment. The result is read once at startup and never modified.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hive-corporation/rf-ctis-bridge/internal/core/domain"
)

// DefaultPath is used when BRIDGE_CONFIG is unset.
const DefaultPath = "config.yml"

type Config struct {
	CTIS                CTISConfig           `yaml:"ctis"`
	RecordedFuture      RecordedFutureConfig `yaml:"recorded_future"`
	Slack               SlackConfig          `yaml:"slack"`
	Mappings            MappingsConfig       `yaml:"mappings"`
	Sources             []string             `yaml:"sources"`
	Ledger              LedgerConfig         `yaml:"ledger"`
	Metrics             MetricsConfig        `yaml:"metrics"`
	MissingEntitiesFile string               `yaml:"missing_entities_file"`
}

type CTISConfig struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

type RecordedFutureConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	Limit int    `yaml:"limit"`
}

type SlackConfig struct {
	URL string `yaml:"url"`
}

type MappingsConfig struct {
	Entities   domain.MappingTable `yaml:"entities"`
	Identities map[string]string   `yaml:"identities"`
}

type LedgerConfig struct {
	Backend     string `yaml:"backend"` // memory|bolt|postgres|redis
	Path        string `yaml:"path"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

// Path returns the configuration file location.
func Path() string {
	if p := os.Getenv("BRIDGE_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the file at path, applies environment overrides and defaults,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.CTIS.URL, "CTIS_URL")
	override(&c.CTIS.Username, "CTIS_USERNAME")
	override(&c.CTIS.Password, "CTIS_PASSWORD")
	override(&c.RecordedFuture.Token, "RF_TOKEN")
	override(&c.Slack.URL, "SLACK_WEBHOOK_URL")
	override(&c.Ledger.DatabaseURL, "DATABASE_URL")
	override(&c.Ledger.RedisAddr, "REDIS_ADDR")
	override(&c.Metrics.PushgatewayURL, "PUSHGATEWAY_URL")
}

func override(field *string, key string) {
	if v := os.Getenv(key); v != "" {
		*field = v
	}
}

func (c *Config) applyDefaults() {
	c.CTIS.URL = strings.TrimSuffix(c.CTIS.URL, "/")
	if c.CTIS.Timeout <= 0 {
		c.CTIS.Timeout = 60 * time.Second
	}
	if c.RecordedFuture.Limit <= 0 {
		c.RecordedFuture.Limit = 100
	}
	if c.Mappings.Entities == nil {
		c.Mappings.Entities = domain.MappingTable{}
	}
	if c.Mappings.Identities == nil {
		c.Mappings.Identities = map[string]string{}
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "memory"
	}
	if c.Ledger.Backend == "bolt" && c.Ledger.Path == "" {
		c.Ledger.Path = "/files/ledger.db"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "rf-ctis-bridge"
	}
	if c.MissingEntitiesFile == "" {
		c.MissingEntitiesFile = "/files/missing_entities.txt"
	}
}

// Validate reports every missing required field at once.
func (c *Config) Validate() error {
	var errs []error
	if c.CTIS.URL == "" {
		errs = append(errs, errors.New("ctis.url is required"))
	}
	if c.CTIS.Username == "" {
		errs = append(errs, errors.New("ctis.username is required"))
	}
	if c.CTIS.Password == "" {
		errs = append(errs, errors.New("ctis.password is required"))
	}
	if c.RecordedFuture.Token == "" {
		errs = append(errs, errors.New("recorded_future.token is required"))
	}
	for vendorType, m := range c.Mappings.Entities {
		if m.Collection == "" {
			errs = append(errs, fmt.Errorf("mappings.entities.%s.type is required", vendorType))
		}
	}
	switch c.Ledger.Backend {
	case "memory", "bolt":
	case "postgres":
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, errors.New("ledger.database_url is required for the postgres ledger"))
		}
	case "redis":
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q is not supported", c.Ledger.Backend))
	}
	return errors.Join(errs...)
}
