package ws

import (
	"time"

	"github.com/driftwatch/backend/internal/detect"
	"github.com/driftwatch/backend/internal/session"
)

type MessageType string

// Server→client message types.
const (
	MsgSnapshot MessageType = "snapshot"
	MsgAlert    MessageType = "alert"
	MsgEvent    MessageType = "event"
	MsgError    MessageType = "error"
)

// Client→server signal types. The browser extension and desktop shell feed
// raw signals over the same socket they receive state on.
const (
	SignalVisibility MessageType = "visibility"
	SignalNavigation MessageType = "navigation"
	SignalActivity   MessageType = "activity"
	SignalRespond    MessageType = "respond"
	SignalExploring  MessageType = "exploring"
)

type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

// SnapshotPayload is the full read-only state pushed to every client on
// connect, on every detector transition (throttled), and on the periodic
// resync tick.
type SnapshotPayload struct {
	State  detect.Snapshot `json:"state"`
	Voyage *session.Voyage `json:"voyage,omitempty"`
}

type AlertPayload struct {
	DistractionType session.DistractionType `json:"distractionType"`
	At              time.Time               `json:"at"`
}

type EventPayload struct {
	Event session.DistractionEvent `json:"event"`
}

// ClientMessage is the inbound signal envelope. Fields are populated
// per-type: Hidden for visibility, URL for navigation, Choice for respond,
// Exploring for exploring.
type ClientMessage struct {
	Type      MessageType `json:"type"`
	Hidden    bool        `json:"hidden,omitempty"`
	URL       string      `json:"url,omitempty"`
	Choice    string      `json:"choice,omitempty"`
	Exploring bool        `json:"exploring,omitempty"`
}
