package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// metricsOnce ensures metrics are created only once
	metricsOnce sync.Once

	// registry holds the bridge metrics; pushed as a whole at the end of a run
	registry *prometheus.Registry

	// ctisRequestsTotal tracks CTIS submissions by collection and outcome
	ctisRequestsTotal *prometheus.CounterVec

	// alertsTotal tracks processed alerts by result
	alertsTotal *prometheus.CounterVec

	// entitiesSkippedTotal tracks entities skipped by reason
	entitiesSkippedTotal *prometheus.CounterVec

	// whitelistRepairsTotal tracks settings patched to unblock dossier creation
	whitelistRepairsTotal *prometheus.CounterVec

	// transportErrorsTotal tracks HTTP transport errors by type
	transportErrorsTotal *prometheus.CounterVec

	// runDuration tracks the length of a sync run
	runDuration prometheus.Gauge

	// lastSuccess records when a run last finished without a fatal error
	lastSuccess prometheus.Gauge
)

// InitMetrics creates and registers all bridge metrics.
// Safe to call more than once.
func InitMetrics() {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()

		ctisRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_ctis_requests_total",
				Help: "Total number of CTIS submissions by collection and outcome",
			},
			[]string{"collection", "outcome"},
		)

		alertsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_alerts_total",
				Help: "Total number of vendor alerts by result",
			},
			[]string{"result"},
		)

		entitiesSkippedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_entities_skipped_total",
				Help: "Total number of entities not created by reason",
			},
			[]string{"reason"},
		)

		whitelistRepairsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_whitelist_repairs_total",
				Help: "Total number of settings whitelist updates",
			},
			[]string{"setting"},
		)

		transportErrorsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_transport_errors_total",
				Help: "Total number of HTTP transport errors by type",
			},
			[]string{"error_type"},
		)

		runDuration = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_run_duration_seconds",
			Help: "Duration of the last sync run in seconds",
		})

		lastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error",
		})

		registry.MustRegister(
			ctisRequestsTotal,
			alertsTotal,
			entitiesSkippedTotal,
			whitelistRepairsTotal,
			transportErrorsTotal,
			runDuration,
			lastSuccess,
		)
	})
}

// Registry returns the bridge registry, nil before InitMetrics.
func Registry() *prometheus.Registry {
	return registry
}

// RecordCTISRequest records one classified CTIS submission
// outcome: "created", "conflict", "failed"
func RecordCTISRequest(collection, outcome string) {
	if ctisRequestsTotal != nil {
		ctisRequestsTotal.WithLabelValues(collection, outcome).Inc()
	}
}

// RecordAlert records a processed alert
// result: "created", "skipped", "failed"
func RecordAlert(result string) {
	if alertsTotal != nil {
		alertsTotal.WithLabelValues(result).Inc()
	}
}

// RecordEntitySkipped records an entity that was not created
// reason: "unmapped", "error"
func RecordEntitySkipped(reason string) {
	if entitiesSkippedTotal != nil {
		entitiesSkippedTotal.WithLabelValues(reason).Inc()
	}
}

// RecordWhitelistRepair records a patched whitelist setting
func RecordWhitelistRepair(setting string) {
	if whitelistRepairsTotal != nil {
		whitelistRepairsTotal.WithLabelValues(setting).Inc()
	}
}

// RecordTransportError records an HTTP transport error
// errorType: "connection", "auth", "rate_limit", "server_error", "circuit_open"
func RecordTransportError(errorType string) {
	if transportErrorsTotal != nil {
		transportErrorsTotal.WithLabelValues(errorType).Inc()
	}
}

// RecordRun records the outcome of a whole run.
func RecordRun(duration time.Duration, success bool) {
	if runDuration != nil {
		runDuration.Set(duration.Seconds())
	}
	if success && lastSuccess != nil {
		lastSuccess.SetToCurrentTime()
	}
}

// Push sends the registry to a Prometheus Pushgateway. A batch run has no
// scrape endpoint, so this is the only way its metrics leave the process.
func Push(gatewayURL, job string) error {
	if registry == nil {
		return fmt.Errorf("metrics not initialized")
	}
	if err := push.New(gatewayURL, job).Gatherer(registry).Push(); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
