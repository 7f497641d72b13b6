package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame drop reasons.
const (
	DropMalformed = "malformed"
	DropNotReady  = "not_ready"
	DropClosed    = "closed"
)

// Metrics holds the relay's Prometheus collectors.
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsTotal  prometheus.Counter

	// Audio relay metrics
	FramesForwarded prometheus.Counter
	FramesDropped   *prometheus.CounterVec
	KeepAlivesSent  prometheus.Counter

	// Turn-taking metrics
	TranscriptEvents  *prometheus.CounterVec
	UtterancesFlushed prometheus.Counter

	// Reply metrics
	SynthesisDuration prometheus.Histogram
	SynthesisFailures prometheus.Counter
	RepliesSent       prometheus.Counter
	RepliesDiscarded  prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_sessions",
			Help: "Current number of active call sessions",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_sessions_total",
			Help: "Total number of call sessions accepted",
		}),

		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_forwarded_total",
			Help: "Total number of caller audio frames forwarded to the transcriber",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_frames_dropped_total",
			Help: "Total number of caller audio frames dropped",
		}, []string{"reason"}),
		KeepAlivesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_keepalives_sent_total",
			Help: "Total number of keep-alive messages sent to the transcriber",
		}),

		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_transcript_events_total",
			Help: "Total number of transcript events received",
		}, []string{"kind"}),
		UtterancesFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_utterances_flushed_total",
			Help: "Total number of completed caller turns",
		}),

		SynthesisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_synthesis_duration_seconds",
			Help:    "Duration of synthesis requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		SynthesisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_synthesis_failures_total",
			Help: "Total number of failed synthesis requests",
		}),
		RepliesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_replies_sent_total",
			Help: "Total number of replies written to callers",
		}),
		RepliesDiscarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_replies_discarded_total",
			Help: "Total number of replies discarded because the call ended",
		}),
	}
}

// Nop returns metrics registered on a throwaway registry.
func Nop() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// RecordSessionStarted increments the session counters
func (m *Metrics) RecordSessionStarted() {
	m.SessionsTotal.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

func (m *Metrics) RecordFrameForwarded() {
	m.FramesForwarded.Inc()
}

func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordKeepAlive() {
	m.KeepAlivesSent.Inc()
}

func (m *Metrics) RecordTranscriptEvent(kind string) {
	m.TranscriptEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordUtteranceFlushed() {
	m.UtterancesFlushed.Inc()
}

// RecordSynthesis records a synthesis request and whether it failed
func (m *Metrics) RecordSynthesis(durationSeconds float64, failed bool) {
	m.SynthesisDuration.Observe(durationSeconds)
	if failed {
		m.SynthesisFailures.Inc()
	}
}

func (m *Metrics) RecordReplySent() {
	m.RepliesSent.Inc()
}

func (m *Metrics) RecordReplyDiscarded() {
	m.RepliesDiscarded.Inc()
}
