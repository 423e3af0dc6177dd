package session

import (
	"time"

	"github.com/google/uuid"
)

// DistractionEvent is the immutable record of a distraction episode (or a
// point-in-time signal for URL and idle detections, where DurationMs is nil).
// Events are created once by the detection engine and handed to the recorder;
// they are never mutated after emission.
type DistractionEvent struct {
	ID         string          `json:"id"`
	VoyageID   string          `json:"voyageId,omitempty"`
	Type       DistractionType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	DurationMs *int64          `json:"durationMs,omitempty"`
}

// NewEvent builds a point-in-time event with a fresh ID.
func NewEvent(typ DistractionType, ts time.Time) DistractionEvent {
	return DistractionEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: ts,
	}
}

// NewDurationEvent builds a completed-episode event. Negative durations are
// clamped to zero so clock skew between signals can't produce nonsense.
func NewDurationEvent(typ DistractionType, ts time.Time, d time.Duration) DistractionEvent {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	ev := NewEvent(typ, ts)
	ev.DurationMs = &ms
	return ev
}
