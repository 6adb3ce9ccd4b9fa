package chatbot

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Personalization modes accepted by ParsePersonalizer.
const (
	PersonalizeRandom = "random"
	PersonalizeAlways = "always"
	PersonalizeNever  = "never"
)

// Personalizer decides what, if anything, to append to a reply for a user
// whose name is known.
type Personalizer interface {
	Suffix(name string) string
}

// PersonalizerFunc adapts a function to Personalizer.
type PersonalizerFunc func(name string) string

func (f PersonalizerFunc) Suffix(name string) string { return f(name) }

// NameSuffix is the personalized closing line for name.
func NameSuffix(name string) string {
	return fmt.Sprintf(" Is there anything else I can help you with today, %s?", name)
}

// CoinPersonalizer appends NameSuffix when Flip returns true.
type CoinPersonalizer struct {
	Flip func() bool
}

// NewRandomPersonalizer appends the suffix to half of the replies.
func NewRandomPersonalizer() *CoinPersonalizer {
	return &CoinPersonalizer{Flip: func() bool { return rand.IntN(2) == 1 }}
}

func (p *CoinPersonalizer) Suffix(name string) string {
	if p == nil || p.Flip == nil || !p.Flip() {
		return ""
	}
	return NameSuffix(name)
}

// AlwaysPersonalize appends the suffix every time.
var AlwaysPersonalize Personalizer = PersonalizerFunc(NameSuffix)

// NeverPersonalize never appends anything.
var NeverPersonalize Personalizer = PersonalizerFunc(func(string) string { return "" })

// ParsePersonalizer resolves a configured mode. An empty mode means random.
func ParsePersonalizer(mode string) (Personalizer, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", PersonalizeRandom:
		return NewRandomPersonalizer(), nil
	case PersonalizeAlways:
		return AlwaysPersonalize, nil
	case PersonalizeNever:
		return NeverPersonalize, nil
	default:
		return nil, fmt.Errorf("chatbot: unknown personalization mode %q", mode)
	}
}
