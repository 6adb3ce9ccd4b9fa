package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestChatMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewChatMetrics(reg)

	m.ObserveReply("hours", false, false, 2*time.Millisecond)
	m.ObserveReply("hours", true, true, 3*time.Millisecond)
	m.ObserveSession("started")
	m.ObserveRejected("pending")

	if got := testutil.ToFloat64(m.repliesTotal.WithLabelValues("hours", "true")); got != 1 {
		t.Fatalf("follow-up replies = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.personalizedTotal); got != 1 {
		t.Fatalf("personalized = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sessionsTotal.WithLabelValues("started")); got != 1 {
		t.Fatalf("sessions started = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rejectedTotal.WithLabelValues("pending")); got != 1 {
		t.Fatalf("rejected = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.replyLatency); n != 1 {
		t.Fatalf("latency collectors = %d, want 1", n)
	}
}

func TestChatMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewChatMetrics(nil)
	m.ObserveSession("cleared")
	if got := testutil.ToFloat64(m.sessionsTotal.WithLabelValues("cleared")); got != 1 {
		t.Fatalf("cleared = %v, want 1", got)
	}
}

func TestChatMetricsNilSafe(t *testing.T) {
	var m *ChatMetrics
	m.ObserveReply("unknown", false, false, time.Millisecond)
	m.ObserveSession("started")
	m.ObserveRejected("empty")
}
