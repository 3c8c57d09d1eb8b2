package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	StepsCompleted  prometheus.Counter
	PlanRegens      prometheus.Counter

	// Analysis metrics
	FramesReceived prometheus.Counter
	StaleDropped   *prometheus.CounterVec
	BackoffEntries prometheus.Counter

	// Speech metrics
	Utterances *prometheus.CounterVec

	// Transport metrics
	WSMessages    *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fixpilot"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active repair sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of repair sessions by end reason",
		},
		[]string{"reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Repair session duration in seconds",
			Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600},
		},
	)

	stepsCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_completed_total",
			Help:      "Total repair steps completed across all sessions",
		},
	)

	planRegens := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_regenerations_total",
			Help:      "Total plan regenerations",
		},
	)

	framesReceived := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total camera frames received from clients",
		},
	)

	staleDropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_stale_dropped_total",
			Help:      "Total analysis responses dropped by the staleness gate",
		},
		[]string{"reason"},
	)

	backoffEntries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analysis_backoff_total",
			Help:      "Total rate-limit backoff entries by the scan loop",
		},
	)

	utterances := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_utterances_total",
			Help:      "Total spoken utterances by outcome",
		},
		[]string{"outcome"},
	)

	wsMessages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Total websocket messages by direction",
		},
		[]string{"direction"},
	)

	rateLimitHits := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_hits_total",
			Help:      "Total rate limit hits",
		},
		[]string{"limit_type"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		stepsCompleted,
		planRegens,
		framesReceived,
		staleDropped,
		backoffEntries,
		utterances,
		wsMessages,
		rateLimitHits,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		StepsCompleted:  stepsCompleted,
		PlanRegens:      planRegens,
		FramesReceived:  framesReceived,
		StaleDropped:    staleDropped,
		BackoffEntries:  backoffEntries,
		Utterances:      utterances,
		WSMessages:      wsMessages,
		RateLimitHits:   rateLimitHits,
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a new live session starting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordStepAdvance records one completed step.
func (m *Metrics) RecordStepAdvance() {
	if m == nil {
		return
	}
	m.StepsCompleted.Inc()
}

// RecordPlanRegen records one plan regeneration.
func (m *Metrics) RecordPlanRegen() {
	if m == nil {
		return
	}
	m.PlanRegens.Inc()
}

// RecordFrame records one inbound camera frame.
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.FramesReceived.Inc()
}

// RecordStaleDropped records one gated-out analysis response.
func (m *Metrics) RecordStaleDropped(reason string) {
	if m == nil {
		return
	}
	m.StaleDropped.WithLabelValues(reason).Inc()
}

// RecordBackoff records one scan-loop backoff entry.
func (m *Metrics) RecordBackoff() {
	if m == nil {
		return
	}
	m.BackoffEntries.Inc()
}

// RecordUtterance records one utterance by outcome ("played", "timed_out").
func (m *Metrics) RecordUtterance(outcome string) {
	if m == nil {
		return
	}
	m.Utterances.WithLabelValues(outcome).Inc()
}

// RecordWSMessage records one websocket message ("in" or "out").
func (m *Metrics) RecordWSMessage(direction string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction).Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(limitType string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(limitType).Inc()
}
