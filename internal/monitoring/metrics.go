// Package monitoring holds the Prometheus collectors for the scanner and the API.
package monitoring

import (
	"net/http"
	"time"

	"github.com/payment-scanner/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of collectors shared by the worker and the API
type Metrics struct {
	ScanTicks       prometheus.Counter
	ScanSkipped     *prometheus.CounterVec
	ScanFailures    *prometheus.CounterVec
	TransfersSeen   *prometheus.CounterVec
	EntriesUpserted *prometheus.CounterVec
	EntriesCreated  *prometheus.CounterVec
	UpsertFailures  *prometheus.CounterVec
	ScanDuration    *prometheus.HistogramVec
	LockErrors      prometheus.Counter
	PendingEvents   prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses a fresh private registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		ScanTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_ticks_total",
			Help: "Scan ticks that ran",
		}),
		ScanSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_ticks_skipped_total",
			Help: "Scan ticks skipped because a scan was still running or another replica held the lock",
		}, []string{"reason"}),
		ScanFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_adapter_failures_total",
			Help: "Adapter scans that returned no transfers because of a failure",
		}, []string{"network"}),
		TransfersSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_transfers_fetched_total",
			Help: "Matching transfers returned by the explorers",
		}, []string{"network"}),
		EntriesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_upserted_total",
			Help: "Ledger upserts that succeeded",
		}, []string{"network"}),
		EntriesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_entries_created_total",
			Help: "Ledger entries seen for the first time",
		}, []string{"network"}),
		UpsertFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_upsert_failures_total",
			Help: "Ledger upserts skipped because of a persistence error",
		}, []string{"network"}),
		ScanDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scanner_adapter_duration_seconds",
			Help:    "Time spent fetching and persisting one adapter's transfers",
			Buckets: prometheus.DefBuckets,
		}, []string{"network"}),
		LockErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_tick_lock_errors_total",
			Help: "Ticks that ran without the cross-replica lock because it could not be reached",
		}),
		PendingEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_pending_detection_events",
			Help: "Detection events held back after a failed publish",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.ScanTicks,
		m.ScanSkipped,
		m.ScanFailures,
		m.TransfersSeen,
		m.EntriesUpserted,
		m.EntriesCreated,
		m.UpsertFailures,
		m.ScanDuration,
		m.LockErrors,
		m.PendingEvents,
		m.HTTPRequests,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ObserveRun records one adapter's contribution to a tick
func (m *Metrics) ObserveRun(run *models.ScanRun) {
	network := string(run.Network)
	if run.Failed() {
		m.ScanFailures.WithLabelValues(network).Inc()
	}
	m.TransfersSeen.WithLabelValues(network).Add(float64(run.Fetched))
	m.EntriesUpserted.WithLabelValues(network).Add(float64(run.Persisted))
	m.EntriesCreated.WithLabelValues(network).Add(float64(run.Created))
	m.UpsertFailures.WithLabelValues(network).Add(float64(run.FailedWrites))
	m.ScanDuration.WithLabelValues(network).Observe(run.Duration.Seconds())
}

// ObserveSkip records a skipped tick
func (m *Metrics) ObserveSkip(reason string) {
	m.ScanSkipped.WithLabelValues(reason).Inc()
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, _ time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, http.StatusText(status)).Inc()
}

// Handler serves the registry the metrics were registered with
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
