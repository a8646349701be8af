package session

import (
	"context"
	"fmt"
	"time"

	"github.com/cartrita/livectl/internal/capture"
	"github.com/cartrita/livectl/internal/media"
	"github.com/cartrita/livectl/internal/vision"
	"github.com/cartrita/livectl/internal/wake"
)

// State is the controller's lifecycle phase.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateActive   State = "active"
	StateStopping State = "stopping"
)

// Mode selects which capture devices a session uses.
type Mode string

const (
	ModeNone       Mode = "none"
	ModeText       Mode = "text"
	ModeVoice      Mode = "voice"
	ModeMultimodal Mode = "multimodal"
)

// ParseMode validates a mode string from the control API.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeText, ModeVoice, ModeMultimodal:
		return Mode(s), nil
	default:
		return ModeNone, fmt.Errorf("unknown session mode %q: expected text, voice, or multimodal", s)
	}
}

// NeedsAudio reports whether the mode opens the microphone.
func (m Mode) NeedsAudio() bool { return m == ModeVoice || m == ModeMultimodal }

// NeedsVideo reports whether the mode opens the camera.
func (m Mode) NeedsVideo() bool { return m == ModeMultimodal }

// Status is a point-in-time snapshot of the controller.
type Status struct {
	State            State     `json:"state"`
	Mode             Mode      `json:"mode"`
	SessionID        string    `json:"sessionId,omitempty"`
	StartedAt        time.Time `json:"startedAt,omitempty"`
	WakeAcknowledged bool      `json:"wakeAcknowledged"`
}

// Acquirer hands out device streams. The real implementation is
// media.Manager.
type Acquirer interface {
	Acquire(ctx context.Context, withVideo bool, opts media.AcquireOptions) (*media.Acquisition, error)
	Release()
}

// Recorder is the chunked audio capture pipeline for one session.
type Recorder interface {
	Start(ctx context.Context) error
	Stop()
	Events() <-chan capture.Event
	WindowPayload(n int) (data []byte, mime string, ok bool, err error)
}

// RecorderFactory builds a recorder on a freshly acquired audio track.
type RecorderFactory func(track media.AudioTrack) (Recorder, error)

// FrameManager runs the periodic frame capture cycle for one session.
type FrameManager interface {
	Start(ctx context.Context) error
	Stop()
}

// FrameFactory builds a frame manager on a freshly acquired video track.
// The onAnalysis callback receives completed frame analyses.
type FrameFactory func(track media.VideoTrack, onAnalysis func(vision.Analysis)) (FrameManager, error)

// WakeDetector watches chunk windows for the wake phrase.
type WakeDetector interface {
	Submit(ctx context.Context, audio []byte, mime string) bool
	Reset()
	OnWake(fn func(wake.Result))
	Detected() bool
}

// PermissionNoter records permission side effects observed during a
// session: grants from successful acquisitions, revocations from tracks
// that end underneath a live session.
type PermissionNoter interface {
	NoteGranted(capability media.Capability)
	NoteRevoked(capability media.Capability)
}

// Speaker voices text to the user, returning after playback completes.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Replier produces the assistant's reply to a user utterance.
type Replier interface {
	Reply(ctx context.Context, message, mode string) (string, error)
}

// Store persists per-session metadata. Conversation content never goes
// through this interface.
type Store interface {
	CreateSession(id, mode string, startedAt time.Time) error
	EndSession(id string, endedAt time.Time, status string, wakeCount, frameCount int, lastError string) error
}

// EventBroadcaster fans session events out to dashboard clients.
type EventBroadcaster interface {
	BroadcastStateChanged(state, mode string)
	BroadcastSessionStarted(sessionID, mode string)
	BroadcastSessionEnded(sessionID string, duration time.Duration)
	BroadcastWakeDetected(phrase, cleanTranscript string)
	BroadcastAssistantReply(text string)
	BroadcastFrameAnalysis(analysis vision.Analysis)
	BroadcastOverlayHidden()
	BroadcastSessionError(code, message, guidance string)
}
