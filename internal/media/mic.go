package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const micFramesPerBuffer = 512

// ErrTrackStopped is returned by ReadPCM after the track has been stopped.
var ErrTrackStopped = fmt.Errorf("track stopped")

// micTrack is a PortAudio capture stream exposed as an AudioTrack.
type micTrack struct {
	stream     *portaudio.Stream
	buf        []int16
	sampleRate int

	mu      sync.Mutex
	live    bool
	onEnded []func()
}

// openMic opens the default input device, trying each candidate sample
// rate in order until one is accepted.
func openMic(rates []int) (*micTrack, error) {
	if len(rates) == 0 {
		rates = []int{16000, 48000, 44100, 32000, 24000}
	}

	var lastErr error
	for _, rate := range rates {
		buf := make([]int16, micFramesPerBuffer)
		stream, err := portaudio.OpenDefaultStream(1, 0, float64(rate), micFramesPerBuffer, buf)
		if err != nil {
			lastErr = err
			continue
		}
		if err := stream.Start(); err != nil {
			_ = stream.Close()
			lastErr = err
			continue
		}
		return &micTrack{stream: stream, buf: buf, sampleRate: rate, live: true}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no candidate sample rates")
	}
	return nil, NewDeviceError(CodeOverconstrained, CapabilityMicrophone, lastErr)
}

func (t *micTrack) Kind() TrackKind { return TrackAudio }
func (t *micTrack) Label() string   { return "default microphone" }
func (t *micTrack) SampleRate() int { return t.sampleRate }

func (t *micTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *micTrack) OnEnded(fn func()) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

// Stop closes the PortAudio stream. Safe to call more than once.
func (t *micTrack) Stop() {
	t.mu.Lock()
	if !t.live {
		t.mu.Unlock()
		return
	}
	t.live = false
	t.mu.Unlock()

	_ = t.stream.Stop()
	_ = t.stream.Close()
}

// ReadPCM blocks for the next buffer of samples and copies it into dst.
// Input overflow is reported to the caller; the capture loop treats it as
// transient and keeps reading.
func (t *micTrack) ReadPCM(dst []int16) (int, error) {
	if !t.Live() {
		return 0, ErrTrackStopped
	}
	if err := t.stream.Read(); err != nil {
		if !t.Live() {
			return 0, ErrTrackStopped
		}
		if errors.Is(err, portaudio.InputOverflowed) {
			// Transient: the buffer still holds samples, keep going.
			return copy(dst, t.buf), nil
		}
		t.fireEnded()
		return 0, err
	}
	n := copy(dst, t.buf)
	return n, nil
}

func (t *micTrack) fireEnded() {
	t.mu.Lock()
	callbacks := t.onEnded
	t.live = false
	t.mu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// DeviceProvider opens real capture devices: PortAudio for the
// microphone, an ffmpeg still-grabber for the camera.
type DeviceProvider struct {
	CameraDevice string
	CameraFormat string

	initOnce sync.Once
	initErr  error
}

// Acquire opens the requested devices. A partial failure stops whatever
// was already opened before returning, so no handle leaks on error.
func (p *DeviceProvider) Acquire(ctx context.Context, req Request) (*Stream, error) {
	p.initOnce.Do(func() {
		p.initErr = portaudio.Initialize()
	})
	if p.initErr != nil && req.Audio != nil {
		return nil, Classify(CapabilityMicrophone, p.initErr)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tracks []Track

	if req.Audio != nil {
		mic, err := openMic(req.Audio.SampleRates)
		if err != nil {
			return nil, Classify(CapabilityMicrophone, err)
		}
		tracks = append(tracks, mic)
	}

	if req.Video != nil {
		cam, err := openCamera(ctx, p.CameraDevice, p.CameraFormat, req.Video)
		if err != nil {
			for _, t := range tracks {
				t.Stop()
			}
			return nil, Classify(CapabilityCamera, err)
		}
		tracks = append(tracks, cam)
	}

	return NewStream(tracks...), nil
}

// Terminate releases the PortAudio runtime. Call once at process exit.
func (p *DeviceProvider) Terminate() {
	if p.initErr == nil {
		_ = portaudio.Terminate()
	}
}
