package media

import (
	"context"
	"fmt"
	"log"
	"sync"
)

// Acquisition is the result of a successful Acquire: the combined stream
// plus a derived audio-only view for the recorder.
type Acquisition struct {
	Stream    *Stream
	AudioOnly *Stream
}

// Manager negotiates device constraints and owns the single live stream.
// At most one acquisition is live at a time; acquiring again stops any
// stale stream first so orphaned handles cannot wedge the device.
type Manager struct {
	provider Provider
	logf     func(string, ...any)

	mu      sync.Mutex
	current *Stream
}

// NewManager wraps a provider.
func NewManager(provider Provider) *Manager {
	return &Manager{provider: provider, logf: log.Printf}
}

// SetLogf overrides the log destination, mainly for tests.
func (m *Manager) SetLogf(logf func(string, ...any)) {
	if logf != nil {
		m.logf = logf
	}
}

// Acquire requests a combined stream. Video is included only when
// withVideo is set; audio is always requested with echo cancellation on,
// noise suppression off, and auto gain on.
func (m *Manager) Acquire(ctx context.Context, withVideo bool, opts AcquireOptions) (*Acquisition, error) {
	m.ReleaseStale()

	req := Request{Audio: DefaultAudioConstraints(opts.SampleRates)}
	if withVideo {
		req.Video = DefaultVideoConstraints(opts.FrameWidth, opts.FrameHeight)
	}

	capability := CapabilityMicrophone
	if withVideo {
		capability = CapabilityCamera
	}

	stream, err := m.provider.Acquire(ctx, req)
	if err != nil {
		return nil, Classify(capability, err)
	}

	if len(stream.Tracks()) == 0 {
		stream.Stop()
		return nil, NewDeviceError(CodeNoTracks, capability, fmt.Errorf("acquired stream has no tracks"))
	}

	m.mu.Lock()
	m.current = stream
	m.mu.Unlock()

	return &Acquisition{Stream: stream, AudioOnly: stream.AudioOnly()}, nil
}

// AcquireOptions tune the constraint defaults per deployment.
type AcquireOptions struct {
	SampleRates []int
	FrameWidth  int
	FrameHeight int
}

// Release stops and forgets the current stream. Safe to call when
// nothing is held.
func (m *Manager) Release() {
	m.mu.Lock()
	stream := m.current
	m.current = nil
	m.mu.Unlock()

	if stream != nil {
		stream.Stop()
	}
}

// ReleaseStale guards against "device already in use" failures from a
// previous acquisition that was never torn down.
func (m *Manager) ReleaseStale() {
	m.mu.Lock()
	stream := m.current
	m.current = nil
	m.mu.Unlock()

	if stream != nil && stream.LiveTracks() > 0 {
		m.logf("warning: releasing stale media stream with %d live tracks", stream.LiveTracks())
		stream.Stop()
	}
}

// Probe acquires the single capability just long enough to learn whether
// access is granted, then releases it. Probing never holds a device open
// and never touches the session's stream slot.
func (m *Manager) Probe(ctx context.Context, capability Capability) error {
	var req Request
	switch capability {
	case CapabilityMicrophone:
		req.Audio = DefaultAudioConstraints(nil)
	case CapabilityCamera:
		req.Video = DefaultVideoConstraints(0, 0)
	default:
		return fmt.Errorf("unknown capability %q", capability)
	}

	stream, err := m.provider.Acquire(ctx, req)
	if err != nil {
		return Classify(capability, err)
	}
	defer stream.Stop()

	if len(stream.Tracks()) == 0 {
		return NewDeviceError(CodeNoTracks, capability, fmt.Errorf("probe stream has no tracks"))
	}
	return nil
}
