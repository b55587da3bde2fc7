package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "inventory_"

	resultSuccess  = "success"
	resultRejected = "rejected"
	resultError    = "error"

	toggleAssigned   = "assigned"
	toggleUnassigned = "unassigned"
)

var (
	registerOnce sync.Once

	ledgerMutations    *prometheus.CounterVec
	allocationWarnings *prometheus.CounterVec
	mappingToggles     *prometheus.CounterVec

	snapshotSaveTotal   *prometheus.CounterVec
	snapshotSaveLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec

	eventHandlerFailures *prometheus.CounterVec
)

// Init registers the service metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		ledgerMutations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_mutations_total",
				Help: "Total ledger mutations by category, operation and result",
			},
			[]string{"category", "operation", "result"},
		)
		allocationWarnings = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "allocation_warnings_total",
				Help: "Allocation records saved with a ratio sum other than 100%",
			},
			[]string{"category"},
		)
		mappingToggles = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mapping_toggles_total",
				Help: "Total product process mapping toggles by result",
			},
			[]string{"result"},
		)

		snapshotSaveTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "snapshot_save_total",
				Help: "Total snapshot saves by kind and result",
			},
			[]string{"kind", "result"},
		)
		snapshotSaveLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "snapshot_save_latency_seconds",
				Help:    "Snapshot sink latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind", "result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total ledger exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Ledger export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		sessionsActive = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "sessions_active",
				Help: "Form sessions currently held in memory",
			},
		)
		sessionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sessions_total",
				Help: "Session lifecycle events by type",
			},
			[]string{"event"},
		)
		eventHandlerFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_handler_failures_total",
				Help: "Event handler failures by event type and reason",
			},
			[]string{"event_type", "reason"},
		)

		prometheus.MustRegister(
			ledgerMutations,
			allocationWarnings,
			mappingToggles,
			snapshotSaveTotal,
			snapshotSaveLatency,
			exportTotal,
			exportLatency,
			sessionsActive,
			sessionsTotal,
			eventHandlerFailures,
		)
	})
}

// IncLedgerMutation counts a ledger mutation.
func IncLedgerMutation(category, operation, result string) {
	if result == "" {
		result = resultSuccess
	}
	if ledgerMutations != nil {
		ledgerMutations.WithLabelValues(category, operation, result).Inc()
	}
}

// AddAllocationWarnings counts warnings attached to a saved ledger.
func AddAllocationWarnings(category string, count int) {
	if count <= 0 {
		return
	}
	if allocationWarnings != nil {
		allocationWarnings.WithLabelValues(category).Add(float64(count))
	}
}

// IncMappingToggle counts a mapping toggle.
func IncMappingToggle(result string) {
	if result == "" {
		result = resultSuccess
	}
	if mappingToggles != nil {
		mappingToggles.WithLabelValues(result).Inc()
	}
}

// ObserveSnapshotSave records a sink call.
func ObserveSnapshotSave(kind, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if snapshotSaveTotal != nil {
		snapshotSaveTotal.WithLabelValues(kind, result).Inc()
	}
	if snapshotSaveLatency != nil {
		snapshotSaveLatency.WithLabelValues(kind, result).Observe(duration.Seconds())
	}
}

// ObserveExport records an export rendering.
func ObserveExport(format, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// SetSessionsActive sets the active session gauge.
func SetSessionsActive(count int) {
	if sessionsActive != nil {
		sessionsActive.Set(float64(count))
	}
}

// IncSessionEvent counts session lifecycle events.
func IncSessionEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if sessionsTotal != nil {
		sessionsTotal.WithLabelValues(event).Inc()
	}
}

// IncEventHandlerFailure counts a failed event handler.
func IncEventHandlerFailure(eventType, reason string) {
	if reason == "" {
		reason = resultError
	}
	if eventHandlerFailures != nil {
		eventHandlerFailures.WithLabelValues(eventType, reason).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultRejected = resultRejected
	ResultError    = resultError

	ToggleAssigned   = toggleAssigned
	ToggleUnassigned = toggleUnassigned
)
