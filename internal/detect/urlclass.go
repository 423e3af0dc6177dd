package detect

import (
	"strings"
	"time"

	"github.com/driftwatch/backend/internal/config"
	"github.com/driftwatch/backend/internal/session"
)

// URLState is the raw state of the navigation-target detector. URL
// distraction is a point-in-time signal: navigation can change faster than
// duration tracking is meaningful, so events carry no duration and Since
// only anchors the episode for the response handler.
type URLState struct {
	CurrentURL string                  `json:"currentUrl"`
	Distracted bool                    `json:"distracted"`
	Type       session.DistractionType `json:"type"`
	Since      *time.Time              `json:"since,omitempty"`
}

type classification struct {
	distracted bool
	typ        session.DistractionType
}

// classifyURL applies the classification rules in strict order:
//  1. a specific domain→category mapping (highest specificity wins),
//  2. the generic blacklist,
//  3. the voyage's relatedApps allowlist (clears any distraction),
//  4. absence from the productivity whitelist,
//  5. otherwise clear.
func classifyURL(raw string, rules config.URLRules, relatedApps []string) classification {
	if raw == "" {
		return classification{typ: session.None}
	}
	url := strings.ToLower(raw)

	// Longest matching fragment wins so overlapping category entries
	// classify deterministically.
	bestLen := 0
	var bestType session.DistractionType
	for domain, category := range rules.Categories {
		if strings.Contains(url, strings.ToLower(domain)) && len(domain) > bestLen {
			bestLen = len(domain)
			bestType = session.TypeFromName(category)
		}
	}
	if bestLen > 0 {
		return classification{distracted: true, typ: bestType}
	}

	for _, fragment := range rules.Blacklist {
		if fragment != "" && strings.Contains(url, strings.ToLower(fragment)) {
			return classification{distracted: true, typ: session.Blacklisted}
		}
	}

	for _, app := range relatedApps {
		if app != "" && strings.Contains(url, strings.ToLower(app)) {
			return classification{typ: session.None}
		}
	}

	for _, fragment := range rules.Whitelist {
		if fragment != "" && strings.Contains(url, strings.ToLower(fragment)) {
			return classification{typ: session.None}
		}
	}

	return classification{distracted: true, typ: session.IrrelevantContent}
}

type urlClassifier struct {
	state URLState
}

// apply records a classification for url. An off→on transition (or a type
// change while on) emits an event immediately; a transition back to
// task-relevant clears the state silently.
func (c *urlClassifier) apply(url string, cls classification, now time.Time) *session.DistractionEvent {
	c.state.CurrentURL = url

	if !cls.distracted {
		c.state.Distracted = false
		c.state.Type = session.None
		c.state.Since = nil
		return nil
	}

	if c.state.Distracted && c.state.Type == cls.typ {
		return nil
	}

	if !c.state.Distracted {
		ts := now
		c.state.Since = &ts
	}
	c.state.Distracted = true
	c.state.Type = cls.typ
	ev := session.NewEvent(cls.typ, now)
	return &ev
}

func (c *urlClassifier) reset() {
	c.state = URLState{Type: session.None}
}
