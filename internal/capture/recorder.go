package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cartrita/livectl/internal/media"
)

// EventType tags recorder events on the subscription channel.
type EventType string

const (
	EventRecorderStarted EventType = "recorder_started"
	EventChunkAvailable  EventType = "chunk_available"
	EventCaptureError    EventType = "capture_error"
)

// Event is one entry in the recorder's typed event stream.
type Event struct {
	Type  EventType
	Chunk Chunk
	Err   error
}

// Config tunes the recorder. Zero values fall back to the defaults used
// by the live session: 500 ms chunks, 10-chunk rolling buffer.
type Config struct {
	ChunkInterval time.Duration
	BufferChunks  int
	Preference    []string
}

// Recorder slices a live audio track into fixed-cadence chunks, keeps a
// bounded rolling buffer of them, and publishes typed events. It owns the
// chunk buffer and its timers; it does not own the track.
type Recorder struct {
	track    media.AudioTrack
	encoder  Encoder
	buffer   *ChunkBuffer
	interval time.Duration
	events   chan Event

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc

	tickWg sync.WaitGroup
	readWg sync.WaitGroup

	pcmMu   sync.Mutex
	pending []int16
}

// NewRecorder selects an encoder from the preference list for the track's
// sample rate and prepares the rolling buffer. A selection failure is a
// recorder-start failure for the caller to classify.
func NewRecorder(track media.AudioTrack, cfg Config) (*Recorder, error) {
	encoder, err := SelectEncoder(cfg.Preference, track.SampleRate())
	if err != nil {
		return nil, err
	}

	interval := cfg.ChunkInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	bufferChunks := cfg.BufferChunks
	if bufferChunks <= 0 {
		bufferChunks = 10
	}

	return &Recorder{
		track:    track,
		encoder:  encoder,
		buffer:   NewChunkBuffer(bufferChunks),
		interval: interval,
		events:   make(chan Event, 64),
	}, nil
}

// MIME reports the container/codec chosen from the preference list.
func (r *Recorder) MIME() string { return r.encoder.MIME() }

// Buffer exposes the rolling chunk buffer for read-only windowing.
func (r *Recorder) Buffer() *ChunkBuffer { return r.buffer }

// Events is the subscription channel. It closes after Stop once both
// capture loops have exited.
func (r *Recorder) Events() <-chan Event { return r.events }

// Start launches the read and chunk loops. A recorder starts once.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("recorder already started")
	}
	if r.stopped {
		r.mu.Unlock()
		return fmt.Errorf("recorder already stopped")
	}
	if !r.track.Live() {
		r.mu.Unlock()
		return fmt.Errorf("audio track is not live")
	}
	r.started = true
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.mu.Unlock()

	r.emit(Event{Type: EventRecorderStarted})

	r.readWg.Add(1)
	go r.readLoop(loopCtx)

	r.tickWg.Add(1)
	go r.tickLoop(loopCtx)

	go func() {
		r.tickWg.Wait()
		r.readWg.Wait()
		close(r.events)
	}()

	return nil
}

// Stop cancels the chunk timer synchronously. The read loop drains once
// the owning session stops the track (a blocked device read only unblocks
// then); Stop is idempotent and never errors.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	cancel := r.cancel
	started := r.started
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		r.tickWg.Wait()
	}
}

// WindowPayload encodes the most recent n chunks as one payload in the
// recorded MIME type. ok is false until n chunks have accumulated, and
// stays false for windows too quiet to contain speech.
func (r *Recorder) WindowPayload(n int) (data []byte, mime string, ok bool, err error) {
	pcm := r.buffer.Window(n)
	if pcm == nil || !IsAudioValid(pcm) {
		return nil, "", false, nil
	}
	data, err = r.encoder.Encode(pcm, r.track.SampleRate())
	if err != nil {
		return nil, "", false, fmt.Errorf("encode %d-chunk window: %w", n, err)
	}
	return data, r.encoder.MIME(), true, nil
}

func (r *Recorder) readLoop(ctx context.Context) {
	defer r.readWg.Done()

	buf := make([]int16, 2048)
	for ctx.Err() == nil {
		n, err := r.track.ReadPCM(buf)
		if err != nil {
			if errors.Is(err, media.ErrTrackStopped) || ctx.Err() != nil {
				return
			}
			r.emit(Event{Type: EventCaptureError, Err: err})
			return
		}
		if n > 0 {
			samples := make([]int16, n)
			copy(samples, buf[:n])
			r.pcmMu.Lock()
			r.pending = append(r.pending, samples...)
			r.pcmMu.Unlock()
		}
	}
}

func (r *Recorder) tickLoop(ctx context.Context) {
	defer r.tickWg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-ticker.C:
			r.flushChunk(at)
		}
	}
}

func (r *Recorder) flushChunk(at time.Time) {
	r.pcmMu.Lock()
	pcm := r.pending
	r.pending = nil
	r.pcmMu.Unlock()

	if len(pcm) == 0 {
		return
	}

	chunk := r.buffer.Append(pcm, at)
	r.emit(Event{Type: EventChunkAvailable, Chunk: chunk})
}

// emit never blocks the capture path; a slow consumer loses events, not
// audio — the rolling buffer still holds the chunks themselves.
func (r *Recorder) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
	}
}
