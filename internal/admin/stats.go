package admin

import (
	"math"
	"net/http"
	"sort"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	"github.com/doctoruncle/clinic-assistant/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TopicCount is the number of replies given for one topic.
type TopicCount struct {
	Topic     string `json:"topic"`
	Replies   int64  `json:"replies"`
	FollowUps int64  `json:"follow_ups"`
}

// LatencySnapshot summarizes the reply latency histogram.
type LatencySnapshot struct {
	Total int64   `json:"total"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// StatsSnapshot is the body of GET /admin/chatbot/stats.
type StatsSnapshot struct {
	TotalReplies  int64           `json:"total_replies"`
	FollowUps     int64           `json:"follow_ups"`
	FollowUpRatio float64         `json:"follow_up_ratio"`
	Personalized  int64           `json:"personalized"`
	Topics        []TopicCount    `json:"topics"`
	Latency       LatencySnapshot `json:"latency"`
}

// Stats reports reply counts since process start.
// GET /admin/chatbot/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap, err := Snapshot(h.gatherer)
	if err != nil {
		h.logger.Error("failed to gather chat metrics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Snapshot reads the chat collectors out of gatherer. Every topic is listed,
// in priority order, even when it has no replies yet.
func Snapshot(gatherer prometheus.Gatherer) (StatsSnapshot, error) {
	mfs, err := gatherer.Gather()
	if err != nil {
		return StatsSnapshot{}, err
	}
	families := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		if mf != nil {
			families[mf.GetName()] = mf
		}
	}

	byTopic := map[string]*TopicCount{}
	snap := StatsSnapshot{Topics: make([]TopicCount, 0, len(chatbot.Topics()))}
	for _, topic := range chatbot.Topics() {
		snap.Topics = append(snap.Topics, TopicCount{Topic: string(topic)})
	}
	for i := range snap.Topics {
		byTopic[snap.Topics[i].Topic] = &snap.Topics[i]
	}

	if family := families[metrics.ReplyMetricName]; family != nil {
		for _, metric := range family.Metric {
			if metric == nil || metric.GetCounter() == nil {
				continue
			}
			n := int64(metric.GetCounter().GetValue())
			tc, ok := byTopic[labelValue(metric, "topic")]
			if !ok {
				continue
			}
			tc.Replies += n
			snap.TotalReplies += n
			if labelValue(metric, "follow_up") == "true" {
				tc.FollowUps += n
				snap.FollowUps += n
			}
		}
	}
	if snap.TotalReplies > 0 {
		snap.FollowUpRatio = float64(snap.FollowUps) / float64(snap.TotalReplies)
	}

	if family := families[metrics.PersonalizedMetricName]; family != nil {
		for _, metric := range family.Metric {
			if metric != nil && metric.GetCounter() != nil {
				snap.Personalized += int64(metric.GetCounter().GetValue())
			}
		}
	}

	snap.Latency = latencySnapshot(families[metrics.LatencyMetricName])
	return snap, nil
}

func latencySnapshot(family *dto.MetricFamily) LatencySnapshot {
	if family == nil {
		return LatencySnapshot{}
	}
	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, metric := range family.Metric {
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b != nil {
				cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
			}
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return LatencySnapshot{}
	}

	// The +Inf bucket is implicit in client_golang output.
	cumulativeByUpper[math.Inf(1)] = sampleCount
	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	return LatencySnapshot{
		Total: int64(sampleCount),
		P50Ms: histogramQuantile(0.50, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		P95Ms: histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0,
	}
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// histogramQuantile linearly interpolates inside the bucket holding the
// q-th sample. uppers must be sorted ascending.
func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}

	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		bucketCount := cum - prevCum
		if bucketCount <= 0 {
			return upper
		}
		fraction := math.Min(math.Max((target-prevCum)/bucketCount, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	return prevUpper
}
