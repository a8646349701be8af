package speech

import (
	"context"
	"fmt"
	"sync"
)

// Synthesizer renders text to a WAV payload.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) ([]byte, error)
}

// Player speaks text through a sink, one utterance at a time. Speak
// blocks its caller until the audio has actually finished playing, so
// callers can sequence speech against other session work. Concurrent
// calls queue up and play in arrival order, never overlapped.
type Player struct {
	synth Synthesizer
	sink  Sink
	voice string
	speed float64

	onSpeaking func(bool)

	playMu sync.Mutex
}

// PlayerOptions configures voice selection and speaking-state callbacks.
type PlayerOptions struct {
	Voice      string
	Speed      float64
	OnSpeaking func(speaking bool)
}

func NewPlayer(synth Synthesizer, sink Sink, opts PlayerOptions) *Player {
	return &Player{
		synth:      synth,
		sink:       sink,
		voice:      opts.Voice,
		speed:      opts.Speed,
		onSpeaking: opts.OnSpeaking,
	}
}

// Speak synthesizes and plays text, returning only after playback has
// completed. Synthesis happens outside the playback lock so a queued
// caller's network round trip overlaps the current utterance.
func (p *Player) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	audio, err := p.synth.Synthesize(ctx, text, p.voice, p.speed)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	clip, err := DecodeWAV(audio)
	if err != nil {
		return fmt.Errorf("decode synthesized audio: %w", err)
	}

	p.playMu.Lock()
	defer p.playMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	p.setSpeaking(true)
	defer p.setSpeaking(false)

	if err := p.sink.Play(ctx, clip); err != nil {
		return fmt.Errorf("play synthesized audio: %w", err)
	}
	return nil
}

func (p *Player) setSpeaking(speaking bool) {
	if p.onSpeaking != nil {
		p.onSpeaking(speaking)
	}
}
