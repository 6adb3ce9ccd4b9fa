package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	"github.com/doctoruncle/clinic-assistant/internal/observability/metrics"
	"github.com/doctoruncle/clinic-assistant/pkg/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reply is the outcome of one Send.
type Reply struct {
	Text         string
	Topic        chatbot.Topic
	FollowUp     bool
	Personalized bool
	Session      *Session
}

// Config wires a Manager. Store, Locker, Logger and Engine default to
// in-memory / stock implementations when nil.
type Config struct {
	Engine  *chatbot.Engine
	Store   Store
	Locker  Locker
	Metrics *metrics.ChatMetrics
	Logger  *logging.Logger

	// ReplyDelay simulates typing latency before the assistant answers.
	ReplyDelay time.Duration
}

// Manager runs the start/send/clear lifecycle for chat sessions.
type Manager struct {
	engine     *chatbot.Engine
	store      Store
	locker     Locker
	metrics    *metrics.ChatMetrics
	logger     *logging.Logger
	tracer     trace.Tracer
	replyDelay time.Duration
	now        func() time.Time
	newID      func() string
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		engine:     cfg.Engine,
		store:      cfg.Store,
		locker:     cfg.Locker,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		tracer:     otel.Tracer("doctoruncle.internal.session"),
		replyDelay: cfg.ReplyDelay,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	if m.engine == nil {
		m.engine = chatbot.NewEngine()
	}
	if m.store == nil {
		m.store = NewMemoryStore(defaultSessionTTL)
	}
	if m.locker == nil {
		m.locker = NewMemoryLocker()
	}
	if m.logger == nil {
		m.logger = logging.Default()
	}
	return m
}

// Start opens a new session holding the greeting.
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	ctx, span := m.tracer.Start(ctx, "session.start")
	defer span.End()

	now := m.now()
	sess := &Session{
		ID:         m.newID(),
		Transcript: m.engine.Start(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Save(ctx, sess); err != nil {
		span.RecordError(err)
		return nil, err
	}
	m.metrics.ObserveSession("started")
	logging.FromContext(ctx, m.logger).Info("chat session started", "session_id", sess.ID)
	return sess, nil
}

// Get returns the current state of a session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

// Send answers one user message. Blank text yields ErrEmptyMessage and a
// second Send while the first is still running yields ErrReplyPending.
func (m *Manager) Send(ctx context.Context, id, text string) (*Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		m.metrics.ObserveRejected("empty")
		return nil, ErrEmptyMessage
	}

	ctx, span := m.tracer.Start(ctx, "session.send", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()
	log := logging.FromContext(ctx, m.logger).With("session_id", id)

	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		if errors.Is(err, ErrReplyPending) {
			m.metrics.ObserveRejected("pending")
		} else {
			span.RecordError(err)
		}
		return nil, err
	}
	defer release()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			m.metrics.ObserveRejected("not_found")
		}
		return nil, err
	}

	start := time.Now()
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	turn := m.engine.RespondTurn(sess.Transcript, text)
	m.metrics.ObserveReply(string(turn.Topic), turn.FollowUp, turn.Personalized, time.Since(start))
	span.SetAttributes(attribute.String("chat.topic", string(turn.Topic)))

	updated := &Session{
		ID:         sess.ID,
		Transcript: turn.Transcript,
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  m.now(),
	}
	if err := m.store.Save(ctx, updated); err != nil {
		span.RecordError(err)
		log.Error("failed to save transcript", "error", err)
		return nil, fmt.Errorf("session: save reply: %w", err)
	}

	log.Debug("chat reply",
		"topic", turn.Topic,
		"follow_up", turn.FollowUp,
		"personalized", turn.Personalized,
		"transcript_len", len(turn.Transcript),
	)
	return &Reply{
		Text:         turn.Reply,
		Topic:        turn.Topic,
		FollowUp:     turn.FollowUp,
		Personalized: turn.Personalized,
		Session:      updated,
	}, nil
}

// Clear resets a session to the greeting, keeping its ID.
func (m *Manager) Clear(ctx context.Context, id string) (*Session, error) {
	ctx, span := m.tracer.Start(ctx, "session.clear")
	defer span.End()

	release, err := m.locker.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cleared := &Session{
		ID:         sess.ID,
		Transcript: m.engine.Clear(sess.Transcript),
		CreatedAt:  sess.CreatedAt,
		UpdatedAt:  m.now(),
	}
	if err := m.store.Save(ctx, cleared); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: save cleared: %w", err)
	}
	m.metrics.ObserveSession("cleared")
	logging.FromContext(ctx, m.logger).Info("chat session cleared", "session_id", id)
	return cleared, nil
}

// End discards a session entirely.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.metrics.ObserveSession("ended")
	return nil
}

// wait applies the simulated reply delay. The engine is not invoked if ctx
// ends first.
func (m *Manager) wait(ctx context.Context) error {
	if m.replyDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.replyDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
