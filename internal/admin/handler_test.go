package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/doctoruncle/clinic-assistant/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postClassify(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/classify", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestClassifyFirstMessage(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), nil)

	rec := postClassify(t, h, `{"text":"Can I book an appointment?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "appointment", resp.Topic)
	assert.False(t, resp.FollowUp, "no prior exchange")
	assert.Empty(t, resp.RecentTopics)
	assert.Empty(t, resp.Name)
}

func TestClassifyWithHistory(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), nil)

	body := `{
		"text": "what about after hours?",
		"history": [
			{"role": "bot", "text": "Hello!"},
			{"role": "user", "text": "hi, my name is alex"},
			{"role": "bot", "text": "Hello!"},
			{"role": "user", "text": "what are your hours"},
			{"role": "bot", "text": "We're open 8 to 6."}
		]
	}`
	rec := postClassify(t, h, body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClassifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "hours", resp.Topic)
	assert.True(t, resp.FollowUp)
	assert.Equal(t, []string{"hours", "greeting"}, resp.RecentTopics)
	assert.Equal(t, "Alex", resp.Name)
}

func TestClassifyRejectsBadInput(t *testing.T) {
	h := NewHandler(prometheus.NewRegistry(), nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"text":`},
		{"blank text", `{"text":"   "}`},
		{"unknown role", `{"text":"hours?","history":[{"role":"nurse","text":"hi"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postClassify(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestStatsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewChatMetrics(reg)
	m.ObserveReply("hours", false, true, 10*time.Millisecond)
	m.ObserveReply("hours", true, false, 10*time.Millisecond)
	m.ObserveReply("unknown", false, false, 10*time.Millisecond)

	h := NewHandler(reg, nil)
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snap StatsSnapshot
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&snap))
	assert.Equal(t, int64(3), snap.TotalReplies)
	assert.Equal(t, int64(1), snap.Personalized)
	assert.Equal(t, int64(3), snap.Latency.Total)
}
