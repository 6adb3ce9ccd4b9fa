package chatbot

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// shortMessageRunes is the length under which any message counts as a
// continuation of the current thread.
const shortMessageRunes = 15

var followUpMarkers = []string{"what about", "how about", "and", "also", "?"}

// namePatterns are tried in order against each user message.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my name is (\w+)`),
	regexp.MustCompile(`(?i)i'm (\w+)`),
	regexp.MustCompile(`(?i)i am (\w+)`),
}

// Classify maps text to a topic by keyword containment. The result depends
// only on text.
func Classify(text string) Topic {
	if r, ok := ruleFor(text); ok {
		return r.Topic
	}
	return TopicUnknown
}

// RecentTopics classifies every user utterance in transcript and returns the
// set of topics seen. TopicUnknown is never included.
func RecentTopics(transcript Transcript) map[Topic]bool {
	seen := make(map[Topic]bool)
	for _, text := range transcript.UserTexts() {
		if topic := Classify(text); topic != TopicUnknown {
			seen[topic] = true
		}
	}
	return seen
}

// IsFollowUp reports whether text reads as a continuation of an exchange
// that already happened in transcript.
func IsFollowUp(transcript Transcript, text string) bool {
	if len(transcript) <= 2 {
		return false
	}
	lower := strings.ToLower(text)
	return containsAny(lower, followUpMarkers) || utf8.RuneCountInString(text) < shortMessageRunes
}

// ExtractName looks for a self-introduction in the user utterances of
// transcript. The most recently stated name wins; messages without an
// introduction leave an earlier name in place.
func ExtractName(transcript Transcript) (string, bool) {
	var name string
	for _, text := range transcript.UserTexts() {
		if found, ok := nameIn(text); ok {
			name = found
		}
	}
	return name, name != ""
}

// nameIn returns the first qualifying capture from namePatterns. Captures of
// two characters or fewer are skipped so "I'm ok" does not become a name.
func nameIn(text string) (string, bool) {
	for _, re := range namePatterns {
		m := re.FindStringSubmatch(text)
		if len(m) < 2 || utf8.RuneCountInString(m[1]) <= 2 {
			continue
		}
		return capitalize(m[1]), true
	}
	return "", false
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
