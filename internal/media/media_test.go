package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"testing"
)

type fakeTrack struct {
	kind TrackKind

	mu      sync.Mutex
	live    bool
	stops   int
	onEnded []func()
}

func newFakeTrack(kind TrackKind) *fakeTrack {
	return &fakeTrack{kind: kind, live: true}
}

func (t *fakeTrack) Kind() TrackKind { return t.kind }
func (t *fakeTrack) Label() string   { return "fake " + string(t.kind) }

func (t *fakeTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = false
	t.stops++
}

func (t *fakeTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = append(t.onEnded, fn)
}

func (t *fakeTrack) end() {
	t.mu.Lock()
	t.live = false
	callbacks := t.onEnded
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

type fakeAudioTrack struct {
	*fakeTrack
	rate int
}

func (t *fakeAudioTrack) ReadPCM(dst []int16) (int, error) {
	if !t.Live() {
		return 0, ErrTrackStopped
	}
	return len(dst), nil
}

func (t *fakeAudioTrack) SampleRate() int { return t.rate }

type fakeVideoTrack struct {
	*fakeTrack
}

func (t *fakeVideoTrack) Grab(context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 2, 2)), nil
}

type fakeProvider struct {
	mu       sync.Mutex
	err      error
	acquired []*Stream
	requests []Request
}

func (p *fakeProvider) Acquire(_ context.Context, req Request) (*Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}

	var tracks []Track
	if req.Audio != nil {
		tracks = append(tracks, &fakeAudioTrack{fakeTrack: newFakeTrack(TrackAudio), rate: 16000})
	}
	if req.Video != nil {
		tracks = append(tracks, &fakeVideoTrack{fakeTrack: newFakeTrack(TrackVideo)})
	}
	stream := NewStream(tracks...)
	p.acquired = append(p.acquired, stream)
	return stream, nil
}

func TestStreamAudioOnlyExcludesVideo(t *testing.T) {
	audio := &fakeAudioTrack{fakeTrack: newFakeTrack(TrackAudio), rate: 16000}
	video := &fakeVideoTrack{fakeTrack: newFakeTrack(TrackVideo)}
	stream := NewStream(audio, video)

	derived := stream.AudioOnly()
	tracks := derived.Tracks()
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track in audio-only stream, got %d", len(tracks))
	}
	if tracks[0].Kind() != TrackAudio {
		t.Fatalf("expected audio track, got %s", tracks[0].Kind())
	}

	// Stopping the derived stream stops the shared audio track.
	derived.Stop()
	if audio.Live() {
		t.Fatal("expected shared audio track to be stopped")
	}
	if !video.Live() {
		t.Fatal("video track must not be affected by audio-only stop")
	}
}

func TestStreamStopIsIdempotent(t *testing.T) {
	track := newFakeTrack(TrackAudio)
	stream := NewStream(track)

	stream.Stop()
	stream.Stop()

	if stream.LiveTracks() != 0 {
		t.Fatalf("expected 0 live tracks, got %d", stream.LiveTracks())
	}
	if track.stops != 2 {
		t.Fatalf("expected Stop delivered to track twice without error, got %d", track.stops)
	}
}

func TestClassifyMapsErrorText(t *testing.T) {
	cases := []struct {
		msg  string
		want Code
	}{
		{"open /dev/video0: permission denied", CodeNotAllowed},
		{"no such device", CodeNotFound},
		{"device or resource busy", CodeNotReadable},
		{"invalid sample rate", CodeOverconstrained},
		{"something unexpected", CodeNotReadable},
	}

	for _, tc := range cases {
		de := Classify(CapabilityCamera, errors.New(tc.msg))
		if de.Code != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.msg, de.Code, tc.want)
		}
	}
}

func TestClassifyPassesThroughDeviceError(t *testing.T) {
	orig := NewDeviceError(CodeNotAllowed, CapabilityMicrophone, errors.New("denied"))
	wrapped := fmt.Errorf("acquire: %w", orig)

	de := Classify(CapabilityCamera, wrapped)
	if de != orig {
		t.Fatal("expected existing DeviceError to pass through unchanged")
	}
}

func TestGuidanceNamesCapability(t *testing.T) {
	de := NewDeviceError(CodeNotAllowed, CapabilityCamera, errors.New("denied"))
	if !strings.Contains(de.Guidance(), "camera") {
		t.Fatalf("expected guidance to reference the camera, got %q", de.Guidance())
	}

	de = NewDeviceError(CodeNotReadable, CapabilityMicrophone, errors.New("busy"))
	if !strings.Contains(de.Guidance(), "in use") {
		t.Fatalf("expected busy-device guidance, got %q", de.Guidance())
	}
}

func TestManagerAcquireDerivesAudioOnly(t *testing.T) {
	provider := &fakeProvider{}
	manager := NewManager(provider)
	manager.SetLogf(func(string, ...any) {})

	acq, err := manager.Acquire(context.Background(), true, AcquireOptions{FrameWidth: 640, FrameHeight: 480})
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if len(acq.Stream.Tracks()) != 2 {
		t.Fatalf("expected combined stream with 2 tracks, got %d", len(acq.Stream.Tracks()))
	}
	if len(acq.AudioOnly.Tracks()) != 1 {
		t.Fatalf("expected audio-only stream with 1 track, got %d", len(acq.AudioOnly.Tracks()))
	}

	req := provider.requests[0]
	if req.Audio == nil || req.Video == nil {
		t.Fatal("expected both audio and video constraints for multimodal acquire")
	}
	if !req.Audio.EchoCancellation || req.Audio.NoiseSuppression || !req.Audio.AutoGainControl {
		t.Fatalf("unexpected audio constraints: %+v", req.Audio)
	}
}

func TestManagerAcquireVoiceOmitsVideo(t *testing.T) {
	provider := &fakeProvider{}
	manager := NewManager(provider)

	if _, err := manager.Acquire(context.Background(), false, AcquireOptions{}); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if provider.requests[0].Video != nil {
		t.Fatal("voice acquire must not request video")
	}
}

func TestManagerAcquireStopsStaleStream(t *testing.T) {
	provider := &fakeProvider{}
	manager := NewManager(provider)
	manager.SetLogf(func(string, ...any) {})

	first, err := manager.Acquire(context.Background(), false, AcquireOptions{})
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}

	if _, err := manager.Acquire(context.Background(), false, AcquireOptions{}); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}

	if first.Stream.LiveTracks() != 0 {
		t.Fatal("expected stale stream to be stopped before reacquisition")
	}
}

func TestManagerAcquireClassifiesFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("permission denied")}
	manager := NewManager(provider)

	_, err := manager.Acquire(context.Background(), true, AcquireOptions{})
	if err == nil {
		t.Fatal("expected acquire error")
	}

	de, ok := AsDeviceError(err)
	if !ok {
		t.Fatalf("expected DeviceError, got %T", err)
	}
	if de.Code != CodeNotAllowed {
		t.Fatalf("expected %s, got %s", CodeNotAllowed, de.Code)
	}
	if de.Capability != CapabilityCamera {
		t.Fatalf("expected camera capability for multimodal failure, got %s", de.Capability)
	}
}

func TestCoordinatorRequestReleasesProbe(t *testing.T) {
	provider := &fakeProvider{}
	manager := NewManager(provider)
	coordinator := NewCoordinator(manager)

	state, err := coordinator.Request(context.Background(), CapabilityMicrophone)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if state != PermissionGranted {
		t.Fatalf("expected granted, got %s", state)
	}

	provider.mu.Lock()
	defer provider.mu.Unlock()
	if len(provider.acquired) != 1 {
		t.Fatalf("expected 1 probe acquisition, got %d", len(provider.acquired))
	}
	if provider.acquired[0].LiveTracks() != 0 {
		t.Fatal("probe stream must be released immediately after the grant")
	}
}

func TestCoordinatorRequestDeniedKeepsGuidance(t *testing.T) {
	provider := &fakeProvider{err: errors.New("permission denied")}
	manager := NewManager(provider)
	coordinator := NewCoordinator(manager)

	var transitions []PermissionState
	coordinator.OnChange(func(_ Capability, state PermissionState) {
		transitions = append(transitions, state)
	})

	state, err := coordinator.Request(context.Background(), CapabilityCamera)
	if err == nil {
		t.Fatal("expected denial error")
	}
	if state != PermissionDenied {
		t.Fatalf("expected denied, got %s", state)
	}
	if coordinator.State(CapabilityCamera) != PermissionDenied {
		t.Fatal("expected tracked state to be denied")
	}
	if !strings.Contains(coordinator.Guidance(CapabilityCamera), "camera") {
		t.Fatalf("expected camera guidance, got %q", coordinator.Guidance(CapabilityCamera))
	}

	want := []PermissionState{PermissionRequesting, PermissionDenied}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("expected transitions %v, got %v", want, transitions)
		}
	}

	// Microphone state is tracked independently.
	if coordinator.State(CapabilityMicrophone) != PermissionUnknown {
		t.Fatal("microphone state must be unaffected by a camera denial")
	}
}
