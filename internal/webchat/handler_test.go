package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	"github.com/doctoruncle/clinic-assistant/internal/session"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, locker session.Locker, opts ...Option) (http.Handler, *session.Manager) {
	t.Helper()
	mgr := session.NewManager(session.Config{
		Engine: chatbot.NewEngine(chatbot.WithPersonalizer(chatbot.NeverPersonalize)),
		Locker: locker,
		Logger: logging.New("error"),
	})
	h := NewHandler(mgr, nil, logging.New("error"), opts...)
	r := chi.NewRouter()
	r.Mount("/chat", h.Routes())
	return r, mgr
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func startSession(t *testing.T, h http.Handler) TranscriptResponse {
	t.Helper()
	w := do(t, h, http.MethodPost, "/chat/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var resp TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleStart(t *testing.T) {
	h, _ := newTestServer(t, nil)

	resp := startSession(t, h)
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "bot", resp.Messages[0].Role)
	assert.Equal(t, chatbot.GreetingText, resp.Messages[0].Text)
}

func TestHandleMessage(t *testing.T) {
	h, _ := newTestServer(t, nil)
	sess := startSession(t, h)

	w := do(t, h, http.MethodPost, "/chat/sessions/"+sess.SessionID+"/messages", `{"text":"Do you accept insurance?"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ReplyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, sess.SessionID, resp.SessionID)
	assert.Equal(t, "insurance", resp.Topic)
	assert.NotEmpty(t, resp.Reply)
	require.Len(t, resp.Messages, 3)
	assert.Equal(t, "user", resp.Messages[1].Role)
	assert.Equal(t, resp.Reply, resp.Messages[2].Text)
}

func TestHandleMessageErrors(t *testing.T) {
	locker := session.NewMemoryLocker()
	h, _ := newTestServer(t, locker)
	sess := startSession(t, h)
	path := "/chat/sessions/" + sess.SessionID + "/messages"

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"invalid json", path, `{`, http.StatusBadRequest},
		{"blank text", path, `{"text":"   "}`, http.StatusBadRequest},
		{"unknown session", "/chat/sessions/nope/messages", `{"text":"hi"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	t.Run("reply pending", func(t *testing.T) {
		release, err := locker.Acquire(context.Background(), sess.SessionID)
		require.NoError(t, err)
		defer release()

		w := do(t, h, http.MethodPost, path, `{"text":"hello"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestHandleMessageRejectsOversizedBody(t *testing.T) {
	h, mgr := newTestServer(t, nil)
	sess := startSession(t, h)

	body := `{"text":"` + strings.Repeat("a", maxMessageBody) + `"}`
	w := do(t, h, http.MethodPost, "/chat/sessions/"+sess.SessionID+"/messages", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	got, err := mgr.Get(context.Background(), sess.SessionID)
	require.NoError(t, err)
	assert.Len(t, got.Transcript, 1, "oversized message must not reach the transcript")

	// Just under the cap is still accepted.
	body = `{"text":"` + strings.Repeat("a", maxMessageBody-32) + `"}`
	w = do(t, h, http.MethodPost, "/chat/sessions/"+sess.SessionID+"/messages", body)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleHistoryAndClear(t *testing.T) {
	h, _ := newTestServer(t, nil)
	sess := startSession(t, h)
	base := "/chat/sessions/" + sess.SessionID

	for _, text := range []string{"hello", "where are you?"} {
		w := do(t, h, http.MethodPost, base+"/messages", `{"text":"`+text+`"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, h, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, w.Code)
	var history TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Messages, 5)

	w = do(t, h, http.MethodPost, base+"/clear", "")
	require.Equal(t, http.StatusOK, w.Code)
	var cleared TranscriptResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cleared))
	assert.Equal(t, sess.SessionID, cleared.SessionID)
	require.Len(t, cleared.Messages, 1)
	assert.Equal(t, chatbot.GreetingText, cleared.Messages[0].Text)

	w = do(t, h, http.MethodGet, "/chat/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleEnd(t *testing.T) {
	h, _ := newTestServer(t, nil)
	sess := startSession(t, h)

	w := do(t, h, http.MethodDelete, "/chat/sessions/"+sess.SessionID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodGet, "/chat/sessions/"+sess.SessionID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type failingSessions struct{ err error }

func (f failingSessions) Start(context.Context) (*session.Session, error) { return nil, f.err }
func (f failingSessions) Get(context.Context, string) (*session.Session, error) {
	return nil, f.err
}
func (f failingSessions) Send(context.Context, string, string) (*session.Reply, error) {
	return nil, f.err
}
func (f failingSessions) Clear(context.Context, string) (*session.Session, error) {
	return nil, f.err
}
func (f failingSessions) End(context.Context, string) error { return f.err }

func TestHandleStoreFailure(t *testing.T) {
	h := NewHandler(failingSessions{err: errors.New("redis down")}, nil, logging.New("error"))
	r := chi.NewRouter()
	r.Mount("/chat", h.Routes())

	w := do(t, r, http.MethodPost, "/chat/sessions", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis")
}
