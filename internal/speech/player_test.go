package speech

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSynth struct {
	t     *testing.T
	calls int32
}

func (s *fakeSynth) Synthesize(_ context.Context, text, _ string, _ float64) ([]byte, error) {
	atomic.AddInt32(&s.calls, 1)
	return buildWAV(s.t, make([]int16, 160), 16000, 1), nil
}

type recordingSink struct {
	delay time.Duration

	mu      sync.Mutex
	active  int
	maxBusy int
	plays   int
}

func (s *recordingSink) Play(ctx context.Context, clip Clip) error {
	s.mu.Lock()
	s.active++
	if s.active > s.maxBusy {
		s.maxBusy = s.active
	}
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.active--
	s.plays++
	s.mu.Unlock()
	return ctx.Err()
}

func TestSpeakReturnsAfterPlaybackCompletes(t *testing.T) {
	sink := &recordingSink{delay: 50 * time.Millisecond}
	player := NewPlayer(&fakeSynth{t: t}, sink, PlayerOptions{})

	start := time.Now()
	if err := player.Speak(context.Background(), "the session is live"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < sink.delay {
		t.Fatalf("Speak returned after %s, before playback finished", elapsed)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.plays != 1 {
		t.Fatalf("expected 1 play, got %d", sink.plays)
	}
}

func TestConcurrentSpeaksNeverOverlap(t *testing.T) {
	sink := &recordingSink{delay: 20 * time.Millisecond}
	player := NewPlayer(&fakeSynth{t: t}, sink, PlayerOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := player.Speak(context.Background(), "queued utterance"); err != nil {
				t.Errorf("Speak failed: %v", err)
			}
		}()
	}
	wg.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.plays != 5 {
		t.Fatalf("expected 5 plays, got %d", sink.plays)
	}
	if sink.maxBusy != 1 {
		t.Fatalf("playback overlapped: %d concurrent plays observed", sink.maxBusy)
	}
}

func TestSpeakEmptyTextIsNoop(t *testing.T) {
	synth := &fakeSynth{t: t}
	sink := &recordingSink{}
	player := NewPlayer(synth, sink, PlayerOptions{})

	if err := player.Speak(context.Background(), ""); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}
	if atomic.LoadInt32(&synth.calls) != 0 {
		t.Fatal("expected no synthesis for empty text")
	}
}

func TestSpeakingCallbackBracketsPlayback(t *testing.T) {
	sink := &recordingSink{}
	var mu sync.Mutex
	var transitions []bool
	player := NewPlayer(&fakeSynth{t: t}, sink, PlayerOptions{
		OnSpeaking: func(speaking bool) {
			mu.Lock()
			transitions = append(transitions, speaking)
			mu.Unlock()
		},
	})

	if err := player.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("Speak failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("expected [true false] speaking transitions, got %v", transitions)
	}
}

func TestSpeakHonorsCanceledContext(t *testing.T) {
	sink := &recordingSink{}
	player := NewPlayer(&fakeSynth{t: t}, sink, PlayerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := player.Speak(ctx, "too late"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}
