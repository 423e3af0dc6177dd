// Package voice wraps the spoken alert collaborators. The detection engine
// only ever treats these as black boxes: speak a prompt, listen for a reply.
package voice

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Transcript is one recognized utterance from the listener.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
}

type Voice interface {
	Speak(ctx context.Context, text string) error
	Listen(ctx context.Context, timeout time.Duration) (Transcript, error)
}

// Null is a disabled voice: Speak succeeds silently and Listen reports
// nothing heard.
type Null struct{}

func (Null) Speak(ctx context.Context, text string) error { return nil }

func (Null) Listen(ctx context.Context, timeout time.Duration) (Transcript, error) {
	return Transcript{}, fmt.Errorf("voice disabled")
}

// ExecVoice shells out to a TTS command (text appended as the last argument)
// and an STT command (transcript read from stdout).
type ExecVoice struct {
	speakCmd  []string
	listenCmd []string
}

func NewExecVoice(speakCmd, listenCmd []string) *ExecVoice {
	return &ExecVoice{
		speakCmd:  append([]string(nil), speakCmd...),
		listenCmd: append([]string(nil), listenCmd...),
	}
}

func (v *ExecVoice) Speak(ctx context.Context, text string) error {
	if len(v.speakCmd) == 0 {
		return nil
	}
	argv := append(append([]string(nil), v.speakCmd...), text)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("speak command: %w", err)
	}
	return nil
}

func (v *ExecVoice) Listen(ctx context.Context, timeout time.Duration) (Transcript, error) {
	if len(v.listenCmd) == 0 {
		return Transcript{}, fmt.Errorf("no listen command configured")
	}
	lctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(lctx, v.listenCmd[0], v.listenCmd[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return Transcript{}, fmt.Errorf("listen command: %w", err)
	}
	text := strings.TrimSpace(string(out))
	if text == "" {
		return Transcript{}, fmt.Errorf("nothing heard")
	}
	return Transcript{Text: text, Confidence: 1.0, Final: true}, nil
}
