// Package vision provides the two external collaborators the combined
// analyzer depends on: something that captures a workspace snapshot
// (screen, optionally camera) and something that judges the snapshot's
// relevance to the voyage goal.
package vision

import "context"

// Snapshot is one captured frame set. Camera is nil when no camera modality
// is available; the analyzer must treat camera-derived judgments as unknown
// in that case, never as evidence of distraction.
type Snapshot struct {
	Screen []byte
	Camera []byte
	MIME   string
}

// Analysis is the classifier's judgment of a workspace snapshot.
// ConfidenceLevel is advisory only: it is logged and surfaced in
// diagnostics but never gates the distraction decision.
type Analysis struct {
	ContentRelevant  bool    `json:"contentRelevant"`
	CameraAvailable  bool    `json:"cameraAvailable"`
	PersonPresent    bool    `json:"personPresent"`
	AppearsFocused   bool    `json:"appearsFocused"`
	ConfidenceLevel  float64 `json:"confidenceLevel"`
	DistractionLevel string  `json:"distractionLevel"`
	DistractionType  string  `json:"distractionType,omitempty"`
}

// Capturer produces workspace snapshots. Implementations may fail at any
// time (permission revoked, display gone); callers must treat failures as
// transient.
type Capturer interface {
	Capture(ctx context.Context) (Snapshot, error)
}

// Classifier judges a snapshot against the voyage goal.
type Classifier interface {
	Analyze(ctx context.Context, snap Snapshot, goal string) (Analysis, error)
}
