package chatbot

import (
	"time"

	"github.com/google/uuid"
)

// Turn is the full outcome of one Respond call.
type Turn struct {
	Reply        string
	Topic        Topic
	FollowUp     bool // follow-up reply text was used
	Name         string
	Personalized bool
	Transcript   Transcript
}

// Engine answers clinic questions from a fixed keyword table. It holds no
// per-conversation state; everything it needs is re-derived from the
// transcript passed to each call, so one Engine serves every session.
type Engine struct {
	personalizer Personalizer
	now          func() time.Time
	newID        func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithPersonalizer overrides the default random personalizer.
func WithPersonalizer(p Personalizer) Option {
	return func(e *Engine) {
		if p != nil {
			e.personalizer = p
		}
	}
}

// WithClock sets the timestamp source for new utterances.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator sets the utterance ID source.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		personalizer: NewRandomPersonalizer(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start returns a fresh transcript holding only the greeting.
func (e *Engine) Start() Transcript {
	return Transcript{e.utterance(RoleBot, GreetingText)}
}

// Clear drops the given transcript and starts over.
func (e *Engine) Clear(Transcript) Transcript {
	return e.Start()
}

// Respond answers userText and returns the reply with the extended
// transcript. userText must be non-empty; callers trim and reject blanks.
func (e *Engine) Respond(transcript Transcript, userText string) (string, Transcript) {
	turn := e.RespondTurn(transcript, userText)
	return turn.Reply, turn.Transcript
}

// RespondTurn is Respond with the classification details attached.
func (e *Engine) RespondTurn(transcript Transcript, userText string) Turn {
	turn := Turn{Topic: TopicUnknown, Reply: FallbackReply}

	if rule, ok := ruleFor(userText); ok {
		turn.Topic = rule.Topic
		turn.Reply = rule.FirstTime
		if IsFollowUp(transcript, userText) && RecentTopics(transcript)[rule.Topic] {
			turn.Reply = rule.FollowUp
			turn.FollowUp = true
		}
	}

	if name, ok := ExtractName(transcript); ok {
		turn.Name = name
		if turn.Topic != TopicThanks && turn.Topic != TopicFarewell {
			if suffix := e.personalizer.Suffix(name); suffix != "" {
				turn.Reply += suffix
				turn.Personalized = true
			}
		}
	}

	turn.Transcript = transcript.Append(
		e.utterance(RoleUser, userText),
		e.utterance(RoleBot, turn.Reply),
	)
	return turn
}

func (e *Engine) utterance(role Role, text string) Utterance {
	return Utterance{
		ID:        e.newID(),
		Role:      role,
		Text:      text,
		CreatedAt: e.now(),
	}
}
