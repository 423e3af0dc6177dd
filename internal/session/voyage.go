package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Voyage is one user-declared focus period with a stated goal.
type Voyage struct {
	ID          string    `json:"id"`
	Goal        string    `json:"goal"`
	RelatedApps []string  `json:"relatedApps,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
}

// Context holds the current voyage and the exploring flag. Detectors consult
// it at the top of every tick/handler: while no voyage is active, or while
// exploring is set, all detection is suspended.
type Context struct {
	mu        sync.RWMutex
	voyage    *Voyage
	exploring bool
}

func NewContext() *Context {
	return &Context{}
}

// Begin starts a new voyage, replacing any previous one. Exploring is
// cleared so a fresh voyage always starts with detection enabled.
func (c *Context) Begin(goal string, relatedApps []string) Voyage {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := &Voyage{
		ID:          uuid.NewString(),
		Goal:        goal,
		RelatedApps: append([]string(nil), relatedApps...),
		StartedAt:   time.Now(),
	}
	c.voyage = v
	c.exploring = false
	return *v
}

// End clears the active voyage and returns it. The second return is false
// when no voyage was active.
func (c *Context) End() (Voyage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voyage == nil {
		return Voyage{}, false
	}
	v := *c.voyage
	c.voyage = nil
	c.exploring = false
	return v, true
}

func (c *Context) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.voyage != nil
}

func (c *Context) IsExploring() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.exploring
}

// SetExploring flips the suspension switch. It has no effect when no voyage
// is active. Returns true if the value changed.
func (c *Context) SetExploring(exploring bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.voyage == nil || c.exploring == exploring {
		return false
	}
	c.exploring = exploring
	return true
}

// Current returns a copy of the active voyage.
func (c *Context) Current() (Voyage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voyage == nil {
		return Voyage{}, false
	}
	return *c.voyage, true
}

// RelatedApps returns the active voyage's allowlist, or nil when idle.
func (c *Context) RelatedApps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voyage == nil {
		return nil
	}
	return append([]string(nil), c.voyage.RelatedApps...)
}

// Goal returns the active voyage's stated goal, or "".
func (c *Context) Goal() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.voyage == nil {
		return ""
	}
	return c.voyage.Goal
}
