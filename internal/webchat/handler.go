package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	"github.com/doctoruncle/clinic-assistant/internal/session"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Sessions runs the chat session lifecycle.
type Sessions interface {
	Start(ctx context.Context) (*session.Session, error)
	Get(ctx context.Context, id string) (*session.Session, error)
	Send(ctx context.Context, id, text string) (*session.Reply, error)
	Clear(ctx context.Context, id string) (*session.Session, error)
	End(ctx context.Context, id string) error
}

// maxMessageBody caps a message request body or websocket frame.
const maxMessageBody = 16 << 10

const defaultIdleTimeout = 2 * time.Minute

// FrameLimiter throttles websocket messages per session.
type FrameLimiter interface {
	Allow(key string) bool
}

// Handler serves the chat widget over JSON and WebSocket.
type Handler struct {
	sessions     Sessions
	logger       *logging.Logger
	upgrader     websocket.Upgrader
	idleTimeout  time.Duration
	frameLimiter FrameLimiter
}

// Option configures a Handler.
type Option func(*Handler)

// WithIdleTimeout closes websocket connections that send nothing, not even
// a pong, for d.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.idleTimeout = d
		}
	}
}

// WithFrameLimiter rate limits inbound websocket messages, keyed by session.
func WithFrameLimiter(l FrameLimiter) Option {
	return func(h *Handler) {
		h.frameLimiter = l
	}
}

// MessageView is one transcript entry as the widget renders it.
type MessageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"` // "user" or "bot"
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// TranscriptResponse is returned by start, history and clear.
type TranscriptResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []MessageView `json:"messages"`
}

// ReplyResponse is returned after a message is answered.
type ReplyResponse struct {
	SessionID string        `json:"session_id"`
	Reply     string        `json:"reply"`
	Topic     string        `json:"topic"`
	Messages  []MessageView `json:"messages"`
}

// NewHandler creates a web chat handler. allowedOrigins controls which
// browser origins may open a WebSocket; "*" allows any, empty means
// same-origin only.
func NewHandler(sessions Sessions, allowedOrigins []string, logger *logging.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		sessions: sessions,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		idleTimeout: defaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the chat routes, to be mounted under /chat.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions", h.HandleStart)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.HandleHistory)
		r.Delete("/", h.HandleEnd)
		r.Post("/messages", h.HandleMessage)
		r.Post("/clear", h.HandleClear)
	})
	r.Get("/ws", h.HandleWebSocket)
	return r
}

// HandleStart opens a new session.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Start(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transcriptResponse(sess))
}

// HandleHistory returns the current transcript.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse(sess))
}

// HandleMessage answers one visitor message.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "message too long", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := h.sessions.Send(r.Context(), chi.URLParam(r, "sessionID"), req.Text)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReplyResponse{
		SessionID: reply.Session.ID,
		Reply:     reply.Text,
		Topic:     string(reply.Topic),
		Messages:  messageViews(reply.Session.Transcript),
	})
}

// HandleClear resets the conversation to the greeting.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Clear(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse(sess))
}

// HandleEnd discards the session.
func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.End(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context(), h.logger).Error("webchat: request failed", "error", err, "path", r.URL.Path)
	}
	http.Error(w, msg, status)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest, "text is required"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, session.ErrReplyPending):
		return http.StatusConflict, "a reply is still pending"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "request cancelled"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func transcriptResponse(sess *session.Session) TranscriptResponse {
	return TranscriptResponse{SessionID: sess.ID, Messages: messageViews(sess.Transcript)}
}

func messageViews(t chatbot.Transcript) []MessageView {
	out := make([]MessageView, 0, len(t))
	for _, u := range t {
		out = append(out, MessageView{
			ID:        u.ID,
			Role:      string(u.Role),
			Text:      u.Text,
			Timestamp: u.CreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
