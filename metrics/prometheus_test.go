package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHelpers(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSessionStarted()
	m.SetActiveSessions(3)
	m.RecordFrameForwarded()
	m.RecordFrameDropped(DropNotReady)
	m.RecordFrameDropped(DropNotReady)
	m.RecordFrameDropped(DropMalformed)
	m.RecordTranscriptEvent("final")
	m.RecordSynthesis(0.2, false)
	m.RecordSynthesis(0.4, true)
	m.RecordReplySent()
	m.RecordReplyDiscarded()

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"sessions total", testutil.ToFloat64(m.SessionsTotal), 1},
		{"active sessions", testutil.ToFloat64(m.ActiveSessions), 3},
		{"frames forwarded", testutil.ToFloat64(m.FramesForwarded), 1},
		{"not ready drops", testutil.ToFloat64(m.FramesDropped.WithLabelValues(DropNotReady)), 2},
		{"malformed drops", testutil.ToFloat64(m.FramesDropped.WithLabelValues(DropMalformed)), 1},
		{"final events", testutil.ToFloat64(m.TranscriptEvents.WithLabelValues("final")), 1},
		{"synthesis failures", testutil.ToFloat64(m.SynthesisFailures), 1},
		{"replies sent", testutil.ToFloat64(m.RepliesSent), 1},
		{"replies discarded", testutil.ToFloat64(m.RepliesDiscarded), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, tt.got)
		}
	}

	if n := testutil.CollectAndCount(m.SynthesisDuration); n != 1 {
		t.Fatalf("expected one synthesis histogram, got %d", n)
	}
}

func TestNewMetricsPerRegistry(t *testing.T) {
	// Each registry gets its own collectors, so two calls must not panic.
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}
