package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "doctoruncle"
	subsystem = "chat"
)

// Fully qualified collector names, for readers of a prometheus.Gatherer.
const (
	ReplyMetricName        = namespace + "_" + subsystem + "_replies_total"
	PersonalizedMetricName = namespace + "_" + subsystem + "_personalized_replies_total"
	LatencyMetricName      = namespace + "_" + subsystem + "_reply_latency_seconds"
)

// ChatMetrics exposes counters/histograms for assistant conversations.
type ChatMetrics struct {
	repliesTotal      *prometheus.CounterVec
	personalizedTotal prometheus.Counter
	sessionsTotal     *prometheus.CounterVec
	rejectedTotal     *prometheus.CounterVec
	replyLatency      prometheus.Histogram
}

// NewChatMetrics registers the chat collectors on reg, or on the default
// registerer when reg is nil.
func NewChatMetrics(reg prometheus.Registerer) *ChatMetrics {
	m := &ChatMetrics{
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "replies_total",
			Help:      "Assistant replies by classified topic",
		}, []string{"topic", "follow_up"}),
		personalizedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "personalized_replies_total",
			Help:      "Replies that carried the visitor's name",
		}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_events_total",
			Help:      "Session lifecycle events",
		}, []string{"event"}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rejected_messages_total",
			Help:      "Messages refused before reaching the assistant",
		}, []string{"reason"}),
		replyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reply_latency_seconds",
			Help:      "Time spent producing a reply, including simulated delay",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.repliesTotal, m.personalizedTotal, m.sessionsTotal, m.rejectedTotal, m.replyLatency)
	return m
}

func (m *ChatMetrics) ObserveReply(topic string, followUp, personalized bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(topic, strconv.FormatBool(followUp)).Inc()
	if personalized {
		m.personalizedTotal.Inc()
	}
	m.replyLatency.Observe(elapsed.Seconds())
}

// ObserveSession records a lifecycle event: started, cleared or ended.
func (m *ChatMetrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(event).Inc()
}

func (m *ChatMetrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.rejectedTotal.WithLabelValues(reason).Inc()
}
