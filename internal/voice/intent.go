package voice

import (
	"strings"

	"github.com/driftwatch/backend/internal/session"
)

var returnPhrases = []string{
	"back on course", "return", "back to work", "on course",
	"focus", "sorry", "yes",
}

var explorePhrases = []string{
	"exploring", "explore", "research", "taking a break",
	"intentional", "on purpose",
}

// ClassifyIntent maps a spoken reply to a response choice. Return-to-course
// phrases are checked first so that a reply containing both readings (e.g.
// "done exploring, back on course") resolves to returning. Unrecognized
// transcripts report ok=false and are ignored by the caller.
func ClassifyIntent(transcript string) (session.ResponseChoice, bool) {
	t := strings.ToLower(strings.TrimSpace(transcript))
	if t == "" {
		return 0, false
	}
	for _, p := range returnPhrases {
		if strings.Contains(t, p) {
			return session.ReturnToCourse, true
		}
	}
	for _, p := range explorePhrases {
		if strings.Contains(t, p) {
			return session.Exploring, true
		}
	}
	return 0, false
}
