package vision

import (
	"context"
	"fmt"
	"os/exec"
)

// ExecCapturer shells out to capture commands that write image bytes to
// stdout (e.g. scrot/grim for the screen, ffmpeg for a camera frame). The
// camera command is optional; when absent, snapshots carry no camera frame
// and camera-derived judgments stay unknown.
type ExecCapturer struct {
	screenCmd []string
	cameraCmd []string
}

func NewExecCapturer(screenCmd, cameraCmd []string) (*ExecCapturer, error) {
	if len(screenCmd) == 0 {
		return nil, fmt.Errorf("capture command is required")
	}
	return &ExecCapturer{
		screenCmd: append([]string(nil), screenCmd...),
		cameraCmd: append([]string(nil), cameraCmd...),
	}, nil
}

func (c *ExecCapturer) Capture(ctx context.Context) (Snapshot, error) {
	screen, err := runCapture(ctx, c.screenCmd)
	if err != nil {
		return Snapshot{}, fmt.Errorf("screen capture: %w", err)
	}
	if len(screen) == 0 {
		return Snapshot{}, fmt.Errorf("screen capture produced no data")
	}

	snap := Snapshot{Screen: screen, MIME: "image/png"}

	// Camera failure is a degraded capture, not a failed one.
	if len(c.cameraCmd) > 0 {
		if camera, err := runCapture(ctx, c.cameraCmd); err == nil && len(camera) > 0 {
			snap.Camera = camera
		}
	}

	return snap, nil
}

func runCapture(ctx context.Context, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return out, nil
}
