package wake

import (
	"context"
	"log"
	"sync"

	"github.com/cartrita/livectl/internal/transcribe"
)

// DefaultMinBytes rejects candidate windows too small to contain speech;
// submitting them would only buy a wasted round trip.
const DefaultMinBytes = 1024

// Result is a positive wake detection: the recognized phrase and any
// trailing command from the same utterance.
type Result struct {
	Phrase          string
	CleanTranscript string
}

// Checker submits candidate audio for transcription.
type Checker interface {
	Transcribe(ctx context.Context, audio []byte, mime string) (transcribe.Result, error)
}

// Detector watches the rolling chunk windows for the wake phrase. It
// fires OnWake at most once per session epoch; checks are serialized by
// dropping windows while one is outstanding, and results that land after
// Reset are discarded.
type Detector struct {
	checker  Checker
	minBytes int
	logf     func(string, ...any)

	mu       sync.Mutex
	onWake   func(Result)
	epoch    int
	detected bool
	inFlight bool
}

// NewDetector wraps a checker. minBytes <= 0 selects the default gate.
func NewDetector(checker Checker, minBytes int) *Detector {
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}
	return &Detector{checker: checker, minBytes: minBytes, logf: log.Printf}
}

// SetLogf overrides the log destination, mainly for tests.
func (d *Detector) SetLogf(logf func(string, ...any)) {
	if logf != nil {
		d.logf = logf
	}
}

// OnWake registers the single wake callback.
func (d *Detector) OnWake(fn func(Result)) {
	d.mu.Lock()
	d.onWake = fn
	d.mu.Unlock()
}

// Detected reports whether the wake phrase has fired this epoch.
func (d *Detector) Detected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected
}

// Reset opens a new session epoch. Any in-flight check belongs to the
// old epoch and its result will be discarded on receipt.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.epoch++
	d.detected = false
	d.inFlight = false
	d.mu.Unlock()
}

// Submit offers a candidate window. It returns true when a check was
// actually launched; windows are skipped when the wake phrase already
// fired, when a check is in flight, or when the payload is implausibly
// small.
func (d *Detector) Submit(ctx context.Context, audio []byte, mime string) bool {
	d.mu.Lock()
	if d.detected || d.inFlight || len(audio) < d.minBytes {
		d.mu.Unlock()
		return false
	}
	d.inFlight = true
	epoch := d.epoch
	d.mu.Unlock()

	go d.check(ctx, audio, mime, epoch)
	return true
}

func (d *Detector) check(ctx context.Context, audio []byte, mime string, epoch int) {
	result, err := d.checker.Transcribe(ctx, audio, mime)

	d.mu.Lock()
	if d.epoch != epoch {
		// Session reset while the check was in flight; nothing here is
		// ours to report.
		d.mu.Unlock()
		return
	}
	d.inFlight = false

	if err != nil {
		d.mu.Unlock()
		d.logf("wake check error: %v", err)
		return
	}

	ww := result.WakeWord
	if ww == nil || !ww.Detected || d.detected {
		d.mu.Unlock()
		return
	}

	d.detected = true
	fn := d.onWake
	d.mu.Unlock()

	if fn != nil {
		fn(Result{Phrase: ww.WakeWord, CleanTranscript: ww.CleanTranscript})
	}
}
