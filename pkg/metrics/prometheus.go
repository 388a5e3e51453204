package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	callsTotal      *prometheus.CounterVec
	callDuration    *prometheus.HistogramVec
	cacheHitsTotal  *prometheus.CounterVec
	turnsTotal      *prometheus.CounterVec
	turnRounds      *prometheus.HistogramVec
	turnDuration    *prometheus.HistogramVec
	plannerTotal    *prometheus.CounterVec
	plannerDuration *prometheus.HistogramVec
	throttlesTotal  *prometheus.CounterVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
// Metrics register into the default registry, so construct it once per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capability_calls_total",
				Help: "Total capability invocations by session, capability, and outcome status",
			},
			[]string{"session_id", "capability", "status"},
		),
		callDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "capability_call_duration_seconds",
				Help:    "Duration of capability backend invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"capability"},
		),
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capability_cache_hits_total",
				Help: "Total capability calls served from the session result cache",
			},
			[]string{"session_id", "capability"},
		),
		turnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_turns_total",
				Help: "Total turns by outcome (done/aborted) and abort reason",
			},
			[]string{"outcome", "reason"},
		),
		turnRounds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_turn_rounds",
				Help:    "Planner rounds consumed per turn",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 10},
			},
			[]string{"outcome"},
		),
		turnDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_turn_duration_seconds",
				Help:    "Wall-clock duration of turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		plannerTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_requests_total",
				Help: "Total planner completion requests by provider and status",
			},
			[]string{"provider", "status"},
		),
		plannerDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planner_request_duration_seconds",
				Help:    "Duration of planner completion requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		throttlesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_throttles_total",
				Help: "Total planner requests rejected while waiting on the rate limiter",
			},
			[]string{"provider", "reason"},
		),
	}
}

// ObserveCall records a completed capability invocation.
func (p *PrometheusRecorder) ObserveCall(sessionID, capabilityName, status string, duration time.Duration) {
	p.callsTotal.WithLabelValues(sessionID, capabilityName, status).Inc()
	p.callDuration.WithLabelValues(capabilityName).Observe(duration.Seconds())
}

// IncCacheHit increments the cache hit counter for a capability.
func (p *PrometheusRecorder) IncCacheHit(sessionID, capabilityName string) {
	p.cacheHitsTotal.WithLabelValues(sessionID, capabilityName).Inc()
}

// ObserveTurn records a completed turn.
func (p *PrometheusRecorder) ObserveTurn(outcome, reason string, rounds int, duration time.Duration) {
	p.turnsTotal.WithLabelValues(outcome, reason).Inc()
	p.turnRounds.WithLabelValues(outcome).Observe(float64(rounds))
	p.turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObservePlanner records a planner completion request.
func (p *PrometheusRecorder) ObservePlanner(provider, status string, duration time.Duration) {
	p.plannerTotal.WithLabelValues(provider, status).Inc()
	p.plannerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// IncThrottle increments the planner throttle counter.
func (p *PrometheusRecorder) IncThrottle(provider, reason string) {
	p.throttlesTotal.WithLabelValues(provider, reason).Inc()
}
