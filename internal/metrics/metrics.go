package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session lifecycle metrics
var (
	// SessionsStartedTotal counts streaming sessions admitted and started.
	SessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_start_count",
			Help: "Total amount of started streaming sessions.",
		},
	)

	// SessionsEndedTotal counts sessions that reached the stopped state,
	// labelled by what ended them.
	SessionsEndedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_end_count",
			Help: "Total amount of ended streaming sessions by reason.",
		},
		[]string{"reason"},
	)

	// SessionsActive tracks the current amount of non-stopped sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active_count",
			Help: "Current amount of active streaming sessions.",
		},
	)

	// SessionDurationSeconds observes full session duration at stop time.
	SessionDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessions_duration_seconds",
			Help:    "Session duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(30, 2, 11),
		},
	)

	// SessionsRejectedTotal counts admissions refused by quota.
	SessionsRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_rejected_count",
			Help: "Total amount of session starts rejected by the instance cap.",
		},
	)
)

// Forwarder metrics
var (
	// ForwardedMessagesTotal counts signaling messages relayed per direction.
	ForwardedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_messages_forwarded_total",
			Help: "Signaling messages forwarded by direction (inbound/outbound).",
		},
		[]string{"direction"},
	)

	// SignalingConnectionsActive tracks live forwarded connections.
	SignalingConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_connections_active",
			Help: "Number of live forwarded signaling connections.",
		},
	)
)

// Reaper metrics
var (
	// ReaperPassesTotal counts completed reaper scan passes.
	ReaperPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_passes_total",
			Help: "Completed reaper passes by reaper name.",
		},
		[]string{"reaper"},
	)

	// ReaperReapedTotal counts sessions reclaimed by the reapers.
	ReaperReapedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_reaped_sessions_total",
			Help: "Sessions reclaimed by reaper name.",
		},
		[]string{"reaper"},
	)

	// ReaperErrorsTotal counts per-item reaper failures that were skipped.
	ReaperErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reaper_errors_total",
			Help: "Per-session reaper failures by reaper name.",
		},
		[]string{"reaper"},
	)

	// ReaperPassDurationSeconds observes the duration of one scan pass.
	ReaperPassDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reaper_pass_duration_seconds",
			Help:    "Duration of one reaper pass in seconds.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"reaper"},
	)
)

// Compute endpoint metrics
var (
	// NvcfRequestsTotal counts control-plane calls by operation and outcome.
	NvcfRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvcf_requests_total",
			Help: "Compute endpoint control-plane calls by operation and status.",
		},
		[]string{"operation", "status"},
	)

	// NvcfRequestDuration tracks control-plane call latency in seconds.
	NvcfRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nvcf_request_duration_seconds",
			Help:    "Compute endpoint control-plane call duration in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// CircuitBreakerStateChanges tracks breaker transitions for the
	// control-plane client.
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// InventoryCacheHits counts deployed-function inventory lookups served
	// from cache (redis or memory) vs the control plane.
	InventoryCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nvcf_inventory_cache_hits_total",
			Help: "Function inventory lookups by source (memory/redis/upstream).",
		},
		[]string{"source"},
	)
)

// Redis metrics
var (
	// RedisOpsTotal counts Redis commands by operation and outcome.
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total number of Redis operations by command and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis command latency in seconds.
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors counts failed Redis connection attempts.
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total number of Redis connection errors",
		},
	)
)
