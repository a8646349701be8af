package media

import (
	"context"
	"image"
	"sync"
)

// Capability identifies a hardware capture capability.
type Capability string

const (
	CapabilityMicrophone Capability = "microphone"
	CapabilityCamera     Capability = "camera"
)

// PermissionState is the grant status for a capability.
type PermissionState string

const (
	PermissionUnknown    PermissionState = "unknown"
	PermissionRequesting PermissionState = "requesting"
	PermissionGranted    PermissionState = "granted"
	PermissionDenied     PermissionState = "denied"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is a live handle on a capture device. Stop must be idempotent.
// OnEnded callbacks fire when the device goes away out from under the
// session (unplugged, revoked), not on an explicit Stop.
type Track interface {
	Kind() TrackKind
	Label() string
	Live() bool
	Stop()
	OnEnded(fn func())
}

// AudioTrack delivers PCM16 mono samples. ReadPCM blocks until at least
// one buffer of samples is available or the track stops.
type AudioTrack interface {
	Track
	ReadPCM(dst []int16) (int, error)
	SampleRate() int
}

// VideoTrack produces still frames on demand.
type VideoTrack interface {
	Track
	Grab(ctx context.Context) (image.Image, error)
}

// Request describes what a Provider should acquire. A nil constraint set
// means the capability is not wanted.
type Request struct {
	Audio *AudioConstraints
	Video *VideoConstraints
}

// AudioConstraints mirror the capture hints applied to the microphone.
// Noise suppression stays off so wake-word signal fidelity is preserved.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
	SampleRates      []int
}

// VideoConstraints carry ideal/min pairs so a constrained device can
// degrade instead of failing outright.
type VideoConstraints struct {
	IdealWidth     int
	IdealHeight    int
	MinWidth       int
	MinHeight      int
	IdealFrameRate int
	MinFrameRate   int
}

// DefaultAudioConstraints returns the capture hints used for every session.
func DefaultAudioConstraints(sampleRates []int) *AudioConstraints {
	return &AudioConstraints{
		EchoCancellation: true,
		NoiseSuppression: false,
		AutoGainControl:  true,
		SampleRates:      sampleRates,
	}
}

// DefaultVideoConstraints returns the camera hints for multimodal capture.
func DefaultVideoConstraints(width, height int) *VideoConstraints {
	return &VideoConstraints{
		IdealWidth:     width,
		IdealHeight:    height,
		MinWidth:       320,
		MinHeight:      240,
		IdealFrameRate: 15,
		MinFrameRate:   5,
	}
}

// Provider acquires device streams. The real implementation opens
// PortAudio and camera devices; tests supply fakes.
type Provider interface {
	Acquire(ctx context.Context, req Request) (*Stream, error)
}

// Stream is an owned set of tracks acquired together.
type Stream struct {
	mu     sync.Mutex
	tracks []Track
}

// NewStream wraps the given tracks in a stream.
func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns a copy of the track list.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// FirstAudio returns the first audio track, if any.
func (s *Stream) FirstAudio() (AudioTrack, bool) {
	for _, t := range s.Tracks() {
		if at, ok := t.(AudioTrack); ok {
			return at, true
		}
	}
	return nil, false
}

// FirstVideo returns the first video track, if any.
func (s *Stream) FirstVideo() (VideoTrack, bool) {
	for _, t := range s.Tracks() {
		if vt, ok := t.(VideoTrack); ok {
			return vt, true
		}
	}
	return nil, false
}

// AudioOnly derives a stream that shares this stream's audio tracks and
// nothing else, so a recorder never sees video tracks.
func (s *Stream) AudioOnly() *Stream {
	var audio []Track
	for _, t := range s.Tracks() {
		if t.Kind() == TrackAudio {
			audio = append(audio, t)
		}
	}
	return NewStream(audio...)
}

// Stop stops every track. Stopping an already-stopped stream is a no-op.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

// LiveTracks counts tracks still in a live state.
func (s *Stream) LiveTracks() int {
	n := 0
	for _, t := range s.Tracks() {
		if t.Live() {
			n++
		}
	}
	return n
}
