package session

import (
	"context"
	"errors"
	"time"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
)

var (
	// ErrNotFound is returned for unknown or expired sessions.
	ErrNotFound = errors.New("session: not found")
	// ErrReplyPending is returned when a reply for the session is still being produced.
	ErrReplyPending = errors.New("session: reply pending")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("session: message is empty")

	errIDRequired = errors.New("session: id required")
)

// Session is one visitor's conversation. The transcript is the only state;
// it lives in the store for the session's lifetime and is never archived.
type Session struct {
	ID         string             `json:"id"`
	Transcript chatbot.Transcript `json:"transcript"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Store keeps live sessions.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// Locker guarantees at most one reply in flight per session. Acquire fails
// fast with ErrReplyPending instead of waiting.
type Locker interface {
	Acquire(ctx context.Context, id string) (release func(), err error)
}

// Sweeper is implemented by stores that must evict idle sessions themselves.
type Sweeper interface {
	Run(interval time.Duration, stop <-chan struct{})
}
