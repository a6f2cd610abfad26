package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreTxAttempts counts document-store transaction attempts by backend and outcome.
	StoreTxAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_store_tx_attempts_total",
		Help: "Document store transaction attempts by backend and outcome",
	}, []string{"backend", "outcome"})

	// StoreOperationLatency records document-store call latency.
	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "threadline_store_operation_latency_seconds",
		Help:    "Document store operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})

	// RedisErrorRate counts Redis errors by command.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_redis_error_rate_total",
		Help: "Total number of Redis errors by command",
	}, []string{"operation"})

	// PurgePhaseOutcomes counts purge phases by phase and outcome.
	PurgePhaseOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_purge_phase_total",
		Help: "Account purge phases by phase and outcome",
	}, []string{"phase", "outcome"})

	// BlobErrorsSwallowed counts blob failures that were logged and ignored.
	BlobErrorsSwallowed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "threadline_blob_errors_swallowed_total",
		Help: "Blob store errors logged and ignored by best-effort flows",
	}, []string{"flow"})
)

// TrackStoreOperation returns a function that records latency when called (e.g. defer).
func TrackStoreOperation(backend, operation string) func() {
	start := time.Now()
	return func() {
		StoreOperationLatency.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	}
}

// TxObserver returns a docstore.Retry outcome callback for backend.
func TxObserver(backend string) func(outcome string) {
	return func(outcome string) {
		StoreTxAttempts.WithLabelValues(backend, outcome).Inc()
	}
}
