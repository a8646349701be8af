package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// cameraTrack grabs still frames from a capture device by shelling out to
// ffmpeg, one frame per Grab. Nothing holds the device open between grabs,
// which keeps the camera LED honest outside of capture ticks.
type cameraTrack struct {
	device string
	format string
	width  int
	height int

	mu      sync.Mutex
	live    bool
	onEnded []func()

	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// openCamera validates the device with a probe grab before handing the
// track out, so acquisition fails fast with a classifiable error.
func openCamera(ctx context.Context, device, format string, c *VideoConstraints) (*cameraTrack, error) {
	if device == "" {
		device = "/dev/video0"
	}
	if format == "" {
		format = "v4l2"
	}

	width, height := 640, 480
	if c != nil && c.IdealWidth > 0 && c.IdealHeight > 0 {
		width, height = c.IdealWidth, c.IdealHeight
	}

	t := &cameraTrack{
		device: device,
		format: format,
		width:  width,
		height: height,
		live:   true,
		run:    runCommand,
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := t.Grab(probeCtx); err != nil {
		t.Stop()
		return nil, err
	}
	return t, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%s: %s: %w", name, lastLine(detail), err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out.Bytes(), nil
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func (t *cameraTrack) Kind() TrackKind { return TrackVideo }
func (t *cameraTrack) Label() string   { return t.device }

func (t *cameraTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *cameraTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *cameraTrack) Stop() {
	t.mu.Lock()
	t.live = false
	t.mu.Unlock()
}

// Grab captures a single frame. A disappearing device marks the track
// ended and fires OnEnded callbacks so the session can drop its overlay
// without tearing down audio.
func (t *cameraTrack) Grab(ctx context.Context) (image.Image, error) {
	if !t.Live() {
		return nil, ErrTrackStopped
	}

	out, err := t.run(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", t.format,
		"-video_size", fmt.Sprintf("%dx%d", t.width, t.height),
		"-i", t.device,
		"-frames:v", "1",
		"-f", "image2", "-c:v", "mjpeg",
		"pipe:1",
	)
	if err != nil {
		if deviceGone(err) {
			t.fireEnded()
		}
		return nil, fmt.Errorf("grab frame from %s: %w", t.device, err)
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode grabbed frame: %w", err)
	}
	return img, nil
}

func deviceGone(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such device") || strings.Contains(msg, "no such file")
}

func (t *cameraTrack) fireEnded() {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	callbacks := t.onEnded
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}
