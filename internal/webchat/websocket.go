package webchat

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	"github.com/doctoruncle/clinic-assistant/internal/session"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/gorilla/websocket"
)

// InboundFrame is what the widget sends.
type InboundFrame struct {
	Type string `json:"type"` // "message", "clear", "ping"
	Text string `json:"text,omitempty"`
}

// OutboundFrame is what we send to the widget.
type OutboundFrame struct {
	Type      string        `json:"type"` // "session", "history", "typing", "message", "cleared", "error", "pong"
	SessionID string        `json:"session_id,omitempty"`
	Text      string        `json:"text,omitempty"`
	Role      string        `json:"role,omitempty"`
	Topic     string        `json:"topic,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
	Messages  []MessageView `json:"messages,omitempty"`
}

// HandleWebSocket upgrades to WebSocket and serves one session. The widget
// may resume an existing session with ?session=<id>; unknown or missing ids
// start a new one.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("webchat: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageBody)
	extendDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
	}
	_ = extendDeadline()
	conn.SetPongHandler(func(string) error { return extendDeadline() })

	done := make(chan struct{})
	defer close(done)
	go h.keepAlive(conn, done)

	ctx := r.Context()
	sess, err := h.resumeOrStart(r)
	if err != nil {
		h.logger.Error("webchat: failed to open session", "error", err)
		_ = conn.WriteJSON(OutboundFrame{Type: "error", Text: "Sorry, something went wrong. Please try again."})
		return
	}

	_ = conn.WriteJSON(OutboundFrame{Type: "session", SessionID: sess.ID})
	_ = conn.WriteJSON(OutboundFrame{Type: "history", SessionID: sess.ID, Messages: messageViews(sess.Transcript)})

	log := logging.FromContext(ctx, h.logger).With("session_id", sess.ID)
	log.Info("webchat: connection opened")

	// Frames are handled one at a time, so a connection never has more than
	// one reply in flight.
	for {
		var in InboundFrame
		if err := conn.ReadJSON(&in); err != nil {
			log.Debug("webchat: connection closed", "error", err)
			return
		}
		_ = extendDeadline()

		switch in.Type {
		case "ping":
			_ = conn.WriteJSON(OutboundFrame{Type: "pong"})
		case "clear":
			cleared, err := h.sessions.Clear(ctx, sess.ID)
			if err != nil {
				h.writeFrameError(conn, err)
				continue
			}
			_ = conn.WriteJSON(OutboundFrame{Type: "cleared", SessionID: cleared.ID, Messages: messageViews(cleared.Transcript)})
		case "message":
			if strings.TrimSpace(in.Text) == "" {
				continue
			}
			if h.frameLimiter != nil && !h.frameLimiter.Allow(sess.ID) {
				_ = conn.WriteJSON(OutboundFrame{Type: "error", Text: "You're sending messages too quickly. Please wait a moment."})
				continue
			}
			_ = conn.WriteJSON(OutboundFrame{Type: "typing"})
			reply, err := h.sessions.Send(ctx, sess.ID, in.Text)
			if err != nil {
				h.writeFrameError(conn, err)
				continue
			}
			sentAt := time.Now().UTC()
			if last, ok := reply.Session.Transcript.Last(); ok {
				sentAt = last.CreatedAt
			}
			_ = conn.WriteJSON(OutboundFrame{
				Type:      "message",
				SessionID: sess.ID,
				Role:      string(chatbot.RoleBot),
				Text:      reply.Text,
				Topic:     string(reply.Topic),
				Timestamp: sentAt.Format(time.RFC3339),
			})
		}
	}
}

// keepAlive pings the widget at half the idle timeout so a live but quiet
// connection keeps answering with pongs.
func (h *Handler) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(h.idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Handler) resumeOrStart(r *http.Request) (*session.Session, error) {
	if id := r.URL.Query().Get("session"); id != "" {
		sess, err := h.sessions.Get(r.Context(), id)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, session.ErrNotFound) {
			return nil, err
		}
	}
	return h.sessions.Start(r.Context())
}

func (h *Handler) writeFrameError(conn *websocket.Conn, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("webchat: frame failed", "error", err)
		msg = "Sorry, something went wrong. Please try again."
	}
	_ = conn.WriteJSON(OutboundFrame{Type: "error", Text: msg})
}

func originChecker(allowed []string) func(*http.Request) bool {
	allowAny := false
	allow := map[string]struct{}{}
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			allow[origin] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowAny {
			return true
		}
		if _, ok := allow[origin]; ok {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}
