// Package metrics provides Prometheus metrics for the listing engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Enumeration metrics
	enumerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "razorlist_enumerations_total",
			Help: "Total number of directory enumerations by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	enumerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "razorlist_enumeration_duration_seconds",
			Help:    "Directory enumeration duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	entriesListed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "razorlist_entries_listed_total",
			Help: "Total number of entries produced by enumerations",
		},
	)

	strategyFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "razorlist_strategy_fallbacks_total",
			Help: "Bulk-to-item strategy fallbacks by triggering error kind",
		},
		[]string{"kind"},
	)

	gateAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "razorlist_gate_wait_abandoned_total",
			Help: "List calls abandoned while waiting for the session gate",
		},
	)

	// Collection metrics
	reconcilePatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "razorlist_reconcile_patches_total",
			Help: "Patches applied to published collections by operation",
		},
		[]string{"op"},
	)

	collectionResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "razorlist_collection_resets_total",
			Help: "Reset notifications emitted by published collections",
		},
	)

	// Watcher metrics
	watchEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "razorlist_watch_events_total",
			Help: "Change events translated by the watcher by operation",
		},
		[]string{"op"},
	)

	refreshRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "razorlist_refresh_requests_total",
			Help: "Refresh requests by source; coalesced counts merged requests",
		},
		[]string{"source"},
	)

	// Enrichment metrics
	enrichSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "razorlist_enrich_steps_total",
			Help: "Enrichment steps by step and result",
		},
		[]string{"step", "result"},
	)

	// Session metrics
	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "razorlist_sessions_active",
			Help: "Number of listing sessions not yet disposed",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEnumeration records a finished enumeration.
func RecordEnumeration(strategy, outcome string, entries int, duration time.Duration) {
	enumerationsTotal.WithLabelValues(strategy, outcome).Inc()
	enumerationDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	entriesListed.Add(float64(entries))
}

// RecordFallback records a bulk-to-item retry.
func RecordFallback(kind string) {
	strategyFallbacks.WithLabelValues(kind).Inc()
}

// RecordGateAbandoned records a list call that gave up waiting.
func RecordGateAbandoned() {
	gateAbandoned.Inc()
}

// RecordReconcile records the patches of one reconcile.
func RecordReconcile(ops []string) {
	if len(ops) == 0 {
		return
	}
	collectionResets.Inc()
	for _, op := range ops {
		reconcilePatches.WithLabelValues(op).Inc()
	}
}

// RecordWatchEvent records a translated change event.
func RecordWatchEvent(op string) {
	watchEvents.WithLabelValues(op).Inc()
}

// RecordRefresh records a refresh request from source.
func RecordRefresh(source string) {
	refreshRequests.WithLabelValues(source).Inc()
}

// RecordEnrichStep records one enrichment step.
func RecordEnrichStep(step string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	enrichSteps.WithLabelValues(step, result).Inc()
}

// RecordEnrichCancelled records an enrichment step skipped by cancellation.
func RecordEnrichCancelled(step string) {
	enrichSteps.WithLabelValues(step, "cancelled").Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func SessionClosed() {
	sessionsActive.Dec()
}
