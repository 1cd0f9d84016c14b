package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitMetrics(t *testing.T) {
	// Should be idempotent (safe to call multiple times)
	InitMetrics()
	InitMetrics()

	if Registry() == nil {
		t.Fatal("Expected registry after InitMetrics")
	}
}

func TestRecordCTISRequest(t *testing.T) {
	InitMetrics()

	before := testutil.ToFloat64(ctisRequestsTotal.WithLabelValues("eeis", "created"))
	RecordCTISRequest("eeis", "created")
	RecordCTISRequest("eeis", "created")
	RecordCTISRequest("eeis", "conflict")

	if got := testutil.ToFloat64(ctisRequestsTotal.WithLabelValues("eeis", "created")) - before; got != 2 {
		t.Errorf("Expected 2 created submissions, got %v", got)
	}
}

func TestRecorders(t *testing.T) {
	InitMetrics()

	tests := []struct {
		name string
		fn   func()
	}{
		{"alert", func() { RecordAlert("created") }},
		{"entity_skipped", func() { RecordEntitySkipped("unmapped") }},
		{"whitelist_repair", func() { RecordWhitelistRepair("xdossiers_originator_allowed") }},
		{"transport_error", func() { RecordTransportError("server_error") }},
		{"run", func() { RecordRun(3*time.Second, true) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic
			tt.fn()
		})
	}

	if got := testutil.ToFloat64(runDuration); got != 3 {
		t.Errorf("Expected run duration 3s, got %v", got)
	}
}

func TestPush(t *testing.T) {
	InitMetrics()
	RecordAlert("created")

	var pushes atomic.Int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/metrics/job/rf-ctis-bridge") {
			t.Errorf("Unexpected push path %s", r.URL.Path)
		}
		pushes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	if err := Push(gateway.URL, "rf-ctis-bridge"); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if pushes.Load() != 1 {
		t.Errorf("Expected 1 push, got %d", pushes.Load())
	}
}

func TestPush_GatewayError(t *testing.T) {
	InitMetrics()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer gateway.Close()

	if err := Push(gateway.URL, "rf-ctis-bridge"); err == nil {
		t.Error("Expected error from failing gateway")
	}
}
