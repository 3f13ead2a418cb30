// Package metrics holds the Prometheus instrumentation shared by the
// central server, the outbox worker and the terminal agent.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status class",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"}, // status: "2xx", "4xx", "5xx"
	)

	HTTPPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Handler panics recovered by the HTTP server",
		},
	)

	// Push protocol

	PushBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_push_batches_total",
			Help: "Total number of push batches by outcome",
		},
		[]string{"outcome"}, // "committed", "rolled_back", "invalid"
	)

	PushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_push_duration_seconds",
			Help:    "Duration of push batch processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_operations_total",
			Help: "Total number of pushed operations by type and result",
		},
		[]string{"op_type", "result"}, // result: "applied", "skipped", "ignored", "rejected"
	)

	// Ledger

	LedgerMovementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_movements_total",
			Help: "Total number of stock movements written by source type",
		},
		[]string{"source_type"},
	)

	// Inventory

	InventoryFinalizeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_finalize_total",
			Help: "Total number of finalize attempts by outcome",
		},
		[]string{"outcome"}, // "closed", "not_open", "error"
	)

	InventoryCountsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inventory_counts_total",
			Help: "Total number of count increments recorded",
		},
	)

	SummaryCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_summary_cache_total",
			Help: "Summary cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	// Notifications

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notification deliveries by outcome",
		},
		[]string{"outcome"}, // "sent", "queued", "failed"
	)

	OutboxRelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_relayed_total",
			Help: "Outbox messages processed by the relay by outcome",
		},
		[]string{"outcome"}, // "published", "retry", "dead_lettered"
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_messages",
			Help: "Notifications waiting in the outbox",
		},
	)

	// Terminal

	TerminalPendingOperations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "terminal_pending_operations",
			Help: "Number of local operations not yet acknowledged by the central server",
		},
	)

	TerminalSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "terminal_sync_total",
			Help: "Terminal sync attempts by kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: "push", "pull"; outcome: "ok", "retry"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "terminal_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordHTTP observes one served request. Unmatched routes share one label.
func RecordHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Observe(d.Seconds())
}

// RecordPush records a finished push batch.
func RecordPush(duration time.Duration, err error) {
	PushDuration.Observe(duration.Seconds())
	if err != nil {
		PushBatchesTotal.WithLabelValues("rolled_back").Inc()
		return
	}
	PushBatchesTotal.WithLabelValues("committed").Inc()
}

// RecordOperation records the outcome of one pushed operation.
func RecordOperation(opType, result string) {
	OperationsTotal.WithLabelValues(opType, result).Inc()
}

// RecordMovement records a written ledger movement.
func RecordMovement(sourceType string) {
	LedgerMovementsTotal.WithLabelValues(sourceType).Inc()
}

func RecordFinalize(outcome string) {
	InventoryFinalizeTotal.WithLabelValues(outcome).Inc()
}

func RecordNotification(outcome string) {
	NotificationsTotal.WithLabelValues(outcome).Inc()
}

func RecordSummaryCache(hit bool) {
	if hit {
		SummaryCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	SummaryCacheTotal.WithLabelValues("miss").Inc()
}

func RecordTerminalSync(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "retry"
	}
	TerminalSyncTotal.WithLabelValues(kind, outcome).Inc()
}
