package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	httpmiddleware "github.com/doctoruncle/clinic-assistant/internal/http/middleware"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const maxClassifyBody = 64 << 10

// Handler serves chatbot diagnostics to CMS users tuning the keyword table.
type Handler struct {
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// HistoryMessage is one prior transcript entry supplied to the classify probe.
type HistoryMessage struct {
	Role string `json:"role"` // "user" or "bot"
	Text string `json:"text"`
}

// ClassifyRequest is the body of POST /admin/chatbot/classify.
type ClassifyRequest struct {
	Text    string           `json:"text"`
	History []HistoryMessage `json:"history,omitempty"`
}

// ClassifyResponse explains how the assistant would read a message.
type ClassifyResponse struct {
	Topic        string   `json:"topic"`
	FollowUp     bool     `json:"follow_up"`
	RecentTopics []string `json:"recent_topics"`
	Name         string   `json:"name,omitempty"`
}

func NewHandler(gatherer prometheus.Gatherer, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{gatherer: gatherer, logger: logger}
}

// Routes returns the diagnostics routes, to be mounted under /admin/chatbot.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/classify", h.Classify)
	r.Get("/stats", h.Stats)
	return r
}

// Classify runs the classifier over text and an optional history without
// touching any session.
// POST /admin/chatbot/classify
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxClassifyBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}

	history, err := transcriptFrom(req.History)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recent := chatbot.RecentTopics(history)
	resp := ClassifyResponse{
		Topic:        string(chatbot.Classify(text)),
		FollowUp:     chatbot.IsFollowUp(history, text),
		RecentTopics: make([]string, 0, len(recent)),
	}
	for _, topic := range chatbot.Topics() {
		if recent[topic] {
			resp.RecentTopics = append(resp.RecentTopics, string(topic))
		}
	}
	if name, ok := chatbot.ExtractName(history); ok {
		resp.Name = name
	}

	if claims, ok := httpmiddleware.AdminClaimsFromContext(r.Context()); ok {
		logging.FromContext(r.Context(), h.logger).Debug("admin classify", "subject", claims.Subject, "topic", resp.Topic)
	}
	writeJSON(w, http.StatusOK, resp)
}

type badRoleError string

func (e badRoleError) Error() string { return "unknown role " + string(e) }

func transcriptFrom(history []HistoryMessage) (chatbot.Transcript, error) {
	out := make(chatbot.Transcript, 0, len(history))
	for _, m := range history {
		role := chatbot.Role(strings.ToLower(strings.TrimSpace(m.Role)))
		if role != chatbot.RoleUser && role != chatbot.RoleBot {
			return nil, badRoleError(m.Role)
		}
		out = append(out, chatbot.Utterance{Role: role, Text: m.Text})
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
