package vision

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cartrita/livectl/internal/media"
)

// Analyzer submits an encoded frame for remote analysis.
type Analyzer interface {
	Analyze(ctx context.Context, frame []byte, analysisType string, focusAreas []string) (Analysis, error)
}

// Manager grabs still frames from a video track on its own interval,
// independent of the audio pipeline. Capture failures are logged and the
// ticker keeps going; analysis requests are serialized by dropping a tick
// while a prior request is still in flight, so request volume stays
// bounded regardless of cadence.
type Manager struct {
	track        media.VideoTrack
	cfg          Config
	analyzer     Analyzer
	analysisType string
	focusAreas   []string
	logf         func(string, ...any)

	onCapture  func(ok bool, err error)
	onAnalysis func(Analysis)

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	analysisInFlight atomic.Bool
}

// Options wires the manager's collaborators and callbacks.
type Options struct {
	Analyzer     Analyzer
	AnalysisType string
	FocusAreas   []string
	OnCapture    func(ok bool, err error)
	OnAnalysis   func(Analysis)
	Logf         func(string, ...any)
}

// NewManager validates the config up front; a bad config never produces
// a half-working capture cycle.
func NewManager(track media.VideoTrack, cfg Config, opts Options) (*Manager, error) {
	normalized, err := cfg.Normalize()
	if err != nil {
		return nil, fmt.Errorf("frame capture config: %w", err)
	}

	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	analysisType := opts.AnalysisType
	if analysisType == "" {
		analysisType = "general"
	}

	return &Manager{
		track:        track,
		cfg:          normalized,
		analyzer:     opts.Analyzer,
		analysisType: analysisType,
		focusAreas:   opts.FocusAreas,
		logf:         logf,
		onCapture:    opts.OnCapture,
		onAnalysis:   opts.OnAnalysis,
	}, nil
}

// Config returns the validated, immutable capture parameters.
func (m *Manager) Config() Config { return m.cfg }

// Start launches the capture ticker. A manager starts once.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("frame capture already started")
	}
	if m.stopped {
		return fmt.Errorf("frame capture already stopped")
	}
	m.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.loop(loopCtx)
	return nil
}

// Stop halts the ticker and waits for the loop to exit. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.cancel
	started := m.started
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if started {
		m.wg.Wait()
	}
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if !m.track.Live() {
		return
	}

	frame, err := m.captureFrame(ctx)
	if err != nil {
		m.logf("frame capture error: %v", err)
		if m.onCapture != nil {
			m.onCapture(false, err)
		}
		return
	}
	if m.onCapture != nil {
		m.onCapture(true, nil)
	}

	if m.analyzer == nil {
		return
	}
	if !m.analysisInFlight.CompareAndSwap(false, true) {
		// Back-pressure by dropping: a prior analysis is still running.
		return
	}

	go func() {
		defer m.analysisInFlight.Store(false)

		analysis, err := m.analyzer.Analyze(ctx, frame, m.analysisType, m.focusAreas)
		if err != nil {
			m.logf("frame analysis error: %v", err)
			return
		}
		if m.onAnalysis != nil {
			m.onAnalysis(analysis)
		}
	}()
}

func (m *Manager) captureFrame(ctx context.Context) ([]byte, error) {
	img, err := m.track.Grab(ctx)
	if err != nil {
		return nil, fmt.Errorf("grab frame: %w", err)
	}

	var buf bytes.Buffer
	quality := int(m.cfg.Quality * 100)
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}
