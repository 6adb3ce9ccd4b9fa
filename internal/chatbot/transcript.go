package chatbot

import "time"

// Role identifies who sent an utterance.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Utterance is one immutable message in a conversation. CreatedAt is only
// used for display ordering.
type Utterance struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Transcript is the append-only log of a conversation, oldest first.
type Transcript []Utterance

// Append returns a new transcript with msgs added at the end. The receiver's
// backing array is never written to, so earlier transcripts stay valid.
func (t Transcript) Append(msgs ...Utterance) Transcript {
	out := make(Transcript, 0, len(t)+len(msgs))
	out = append(out, t...)
	return append(out, msgs...)
}

// UserTexts returns the text of every user utterance in order.
func (t Transcript) UserTexts() []string {
	out := make([]string, 0, len(t)/2+1)
	for _, u := range t {
		if u.Role == RoleUser {
			out = append(out, u.Text)
		}
	}
	return out
}

// Last returns the newest utterance, if any.
func (t Transcript) Last() (Utterance, bool) {
	if len(t) == 0 {
		return Utterance{}, false
	}
	return t[len(t)-1], true
}
