package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartrita/livectl/internal/capture"
	"github.com/cartrita/livectl/internal/media"
	"github.com/cartrita/livectl/internal/vision"
	"github.com/cartrita/livectl/internal/wake"
)

const (
	defaultWakeWindowChunks = 2
	defaultAckDelay         = 1500 * time.Millisecond
	defaultAckText          = "Yes?"
)

// Config tunes session behavior. Zero values select the live defaults.
type Config struct {
	// WakeWindowChunks is the number of trailing chunks assembled into
	// each wake-word candidate window.
	WakeWindowChunks int
	// AckDelay is how long after the spoken wake acknowledgment the
	// trailing command is sent to the assistant.
	AckDelay time.Duration
	// AckText is spoken when the wake phrase is recognized.
	AckText string
	// StopAckText, when set, is spoken after a session ends.
	StopAckText string
	// Acquire carries per-deployment device constraint defaults.
	Acquire media.AcquireOptions
}

// Options wires the controller's collaborators.
type Options struct {
	Config      Config
	Acquirer    Acquirer
	NewRecorder RecorderFactory
	NewFrames   FrameFactory
	Detector    WakeDetector
	Speaker     Speaker
	Replier     Replier
	Store       Store
	Hub         EventBroadcaster
	Permissions PermissionNoter
	Logf        func(string, ...any)
	NewID       func() string
}

// Controller owns the session state machine. One session is live at a
// time; Start while Active is a no-op and Stop while Idle is a no-op.
// Every exit path from a live session funnels through teardown, which
// stops timers before it stops device handles.
type Controller struct {
	cfg         Config
	acquirer    Acquirer
	newRecorder RecorderFactory
	newFrames   FrameFactory
	detector    WakeDetector
	speaker     Speaker
	replier     Replier
	store       Store
	hub         EventBroadcaster
	perms       PermissionNoter
	logf        func(string, ...any)
	newID       func() string

	// opMu serializes Start and Stop so a stop never interleaves with a
	// half-finished start.
	opMu sync.Mutex

	mu          sync.Mutex
	state       State
	mode        Mode
	sessionID   string
	startedAt   time.Time
	wakeAcked   bool
	wakeCount   int
	frameCount  int
	lastError   string
	acquisition *media.Acquisition
	recorder    Recorder
	frames      FrameManager
	sessionCtx  context.Context
	cancel      context.CancelFunc
	ackTimer    *time.Timer
	pumpWg      sync.WaitGroup
}

// NewController builds an idle controller and registers the wake callback.
func NewController(opts Options) *Controller {
	cfg := opts.Config
	if cfg.WakeWindowChunks <= 0 {
		cfg.WakeWindowChunks = defaultWakeWindowChunks
	}
	if cfg.AckDelay <= 0 {
		cfg.AckDelay = defaultAckDelay
	}
	if cfg.AckText == "" {
		cfg.AckText = defaultAckText
	}

	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	c := &Controller{
		cfg:         cfg,
		acquirer:    opts.Acquirer,
		newRecorder: opts.NewRecorder,
		newFrames:   opts.NewFrames,
		detector:    opts.Detector,
		speaker:     opts.Speaker,
		replier:     opts.Replier,
		store:       opts.Store,
		hub:         opts.Hub,
		perms:       opts.Permissions,
		logf:        logf,
		newID:       newID,
		state:       StateIdle,
		mode:        ModeNone,
	}

	if c.detector != nil {
		c.detector.OnWake(c.handleWake)
	}
	return c
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:            c.state,
		Mode:             c.mode,
		SessionID:        c.sessionID,
		StartedAt:        c.startedAt,
		WakeAcknowledged: c.wakeAcked,
	}
}

// Start brings up a session in the given mode. Starting while a session
// is already live returns the live session's status unchanged. Failures
// are all-or-nothing: anything acquired along the way is released before
// the error is returned, and the classified error is also broadcast.
func (c *Controller) Start(ctx context.Context, mode Mode) (Status, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	switch c.state {
	case StateActive, StateStarting:
		status := c.statusLocked()
		c.mu.Unlock()
		return status, nil
	case StateStopping:
		c.mu.Unlock()
		return Status{}, ErrStopping
	}
	c.state = StateStarting
	c.mode = mode
	c.mu.Unlock()

	c.broadcastState(StateStarting, mode)

	sessionCtx, cancel := context.WithCancel(context.Background())

	var acq *media.Acquisition
	if mode.NeedsAudio() {
		var err error
		acq, err = c.acquirer.Acquire(ctx, mode.NeedsVideo(), c.cfg.Acquire)
		if err != nil {
			cancel()
			return Status{}, c.abortStart(mode, nil, nil, nil, err)
		}
	}

	var rec Recorder
	if acq != nil {
		track, ok := acq.AudioOnly.FirstAudio()
		if !ok {
			cancel()
			err := media.NewDeviceError(media.CodeNoTracks, media.CapabilityMicrophone, nil)
			return Status{}, c.abortStart(mode, acq, nil, nil, err)
		}

		var err error
		rec, err = c.newRecorder(track)
		if err != nil {
			cancel()
			err = media.NewDeviceError(media.CodeRecorderStart, media.CapabilityMicrophone, err)
			return Status{}, c.abortStart(mode, acq, nil, nil, err)
		}
		if err := rec.Start(sessionCtx); err != nil {
			cancel()
			err = media.NewDeviceError(media.CodeRecorderStart, media.CapabilityMicrophone, err)
			return Status{}, c.abortStart(mode, acq, rec, nil, err)
		}
	}

	var frames FrameManager
	if mode.NeedsVideo() {
		track, ok := acq.Stream.FirstVideo()
		if !ok {
			cancel()
			err := media.NewDeviceError(media.CodeNoTracks, media.CapabilityCamera, nil)
			return Status{}, c.abortStart(mode, acq, rec, nil, err)
		}

		var err error
		frames, err = c.newFrames(track, c.handleAnalysis)
		if err != nil {
			cancel()
			return Status{}, c.abortStart(mode, acq, rec, nil, media.Classify(media.CapabilityCamera, err))
		}
		if err := frames.Start(sessionCtx); err != nil {
			cancel()
			return Status{}, c.abortStart(mode, acq, rec, frames, media.Classify(media.CapabilityCamera, err))
		}

		track.OnEnded(c.handleVideoEnded)
	}

	// A successful acquisition is proof of access; keep the dashboard's
	// permission state truthful without a separate probe.
	if acq != nil && c.perms != nil {
		c.perms.NoteGranted(media.CapabilityMicrophone)
		if mode.NeedsVideo() {
			c.perms.NoteGranted(media.CapabilityCamera)
		}
	}

	if c.detector != nil {
		c.detector.Reset()
	}

	id := c.newID()
	startedAt := time.Now().UTC()

	c.mu.Lock()
	c.state = StateActive
	c.sessionID = id
	c.startedAt = startedAt
	c.wakeAcked = false
	c.wakeCount = 0
	c.frameCount = 0
	c.lastError = ""
	c.acquisition = acq
	c.recorder = rec
	c.frames = frames
	c.sessionCtx = sessionCtx
	c.cancel = cancel
	status := c.statusLocked()
	c.mu.Unlock()

	if rec != nil {
		c.pumpWg.Add(1)
		go c.pumpRecorder(sessionCtx, rec)
	}

	if c.store != nil {
		if err := c.store.CreateSession(id, string(mode), startedAt); err != nil {
			c.logf("warning: record session start: %v", err)
		}
	}

	if c.hub != nil {
		c.hub.BroadcastSessionStarted(id, string(mode))
	}
	c.broadcastState(StateActive, mode)

	return status, nil
}

// Stop ends the live session. Stopping an idle controller is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	id := c.sessionID
	mode := c.mode
	startedAt := c.startedAt
	c.mu.Unlock()

	c.broadcastState(StateStopping, mode)
	c.teardown()

	endedAt := time.Now().UTC()

	c.mu.Lock()
	wakeCount := c.wakeCount
	frameCount := c.frameCount
	lastError := c.lastError
	c.state = StateIdle
	c.mode = ModeNone
	c.sessionID = ""
	c.startedAt = time.Time{}
	c.wakeAcked = false
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.EndSession(id, endedAt, "completed", wakeCount, frameCount, lastError); err != nil {
			c.logf("warning: record session end: %v", err)
		}
	}

	if c.hub != nil {
		c.hub.BroadcastSessionEnded(id, endedAt.Sub(startedAt))
	}
	c.broadcastState(StateIdle, ModeNone)

	if c.cfg.StopAckText != "" && c.speaker != nil {
		text := c.cfg.StopAckText
		go func() {
			if err := c.speaker.Speak(context.Background(), text); err != nil {
				c.logf("deactivation acknowledgment: %v", err)
			}
		}()
	}

	return nil
}

// teardown releases everything a live session holds: timers first (ack
// timer, frame ticker, chunk ticker), then device handles. Idempotent.
func (c *Controller) teardown() {
	c.mu.Lock()
	ackTimer := c.ackTimer
	frames := c.frames
	rec := c.recorder
	acq := c.acquisition
	cancel := c.cancel
	c.ackTimer = nil
	c.frames = nil
	c.recorder = nil
	c.acquisition = nil
	c.sessionCtx = nil
	c.cancel = nil
	c.mu.Unlock()

	if ackTimer != nil {
		ackTimer.Stop()
	}
	if frames != nil {
		frames.Stop()
	}
	if rec != nil {
		rec.Stop()
	}
	if cancel != nil {
		cancel()
	}
	if acq != nil {
		acq.Stream.Stop()
	}
	if c.acquirer != nil {
		c.acquirer.Release()
	}
	if c.detector != nil {
		c.detector.Reset()
	}

	c.pumpWg.Wait()
}

// abortStart unwinds a failed start and surfaces the classified error.
func (c *Controller) abortStart(mode Mode, acq *media.Acquisition, rec Recorder, frames FrameManager, err error) error {
	if frames != nil {
		frames.Stop()
	}
	if rec != nil {
		rec.Stop()
	}
	if acq != nil {
		acq.Stream.Stop()
	}
	if c.acquirer != nil {
		c.acquirer.Release()
	}
	c.pumpWg.Wait()

	c.mu.Lock()
	c.state = StateIdle
	c.mode = ModeNone
	c.mu.Unlock()

	c.logf("session start failed (%s): %v", mode, err)
	c.broadcastError(err)
	c.broadcastState(StateIdle, ModeNone)
	return err
}

// pumpRecorder consumes the recorder's event stream for the life of the
// session, feeding chunk windows to the wake detector.
func (c *Controller) pumpRecorder(ctx context.Context, rec Recorder) {
	defer c.pumpWg.Done()

	for ev := range rec.Events() {
		switch ev.Type {
		case capture.EventChunkAvailable:
			c.submitWakeWindow(ctx, rec)
		case capture.EventCaptureError:
			c.handleCaptureError(ev.Err)
		}
	}
}

func (c *Controller) submitWakeWindow(ctx context.Context, rec Recorder) {
	if c.detector == nil || c.detector.Detected() {
		return
	}

	data, mime, ok, err := rec.WindowPayload(c.cfg.WakeWindowChunks)
	if err != nil {
		c.logf("wake window: %v", err)
		return
	}
	if !ok {
		return
	}
	c.detector.Submit(ctx, data, mime)
}

func (c *Controller) handleCaptureError(err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.lastError = err.Error()
	c.mu.Unlock()

	c.logf("capture error: %v", err)
	c.broadcastError(media.Classify(media.CapabilityMicrophone, err))
}

// handleWake runs when the detector recognizes the wake phrase: flag the
// session, voice the acknowledgment, and after a short pause hand any
// trailing command to the assistant.
func (c *Controller) handleWake(result wake.Result) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.wakeAcked = true
	c.wakeCount++
	id := c.sessionID
	ctx := c.sessionCtx
	c.mu.Unlock()

	c.logf("wake phrase %q recognized", result.Phrase)
	if c.hub != nil {
		c.hub.BroadcastWakeDetected(result.Phrase, result.CleanTranscript)
	}

	if c.speaker != nil {
		go func() {
			if err := c.speaker.Speak(ctx, c.cfg.AckText); err != nil {
				c.logf("wake acknowledgment: %v", err)
			}
		}()
	}

	timer := time.AfterFunc(c.cfg.AckDelay, func() {
		c.respond(id, result.CleanTranscript)
	})

	c.mu.Lock()
	c.ackTimer = timer
	c.mu.Unlock()
}

// respond sends the post-wake command to the assistant and voices the
// reply. A session change between scheduling and firing drops the work.
func (c *Controller) respond(sessionID, transcript string) {
	if transcript == "" || c.replier == nil {
		return
	}

	c.mu.Lock()
	if c.state != StateActive || c.sessionID != sessionID {
		c.mu.Unlock()
		return
	}
	mode := c.mode
	ctx := c.sessionCtx
	c.mu.Unlock()

	reply, err := c.replier.Reply(ctx, transcript, string(mode))
	if err != nil {
		c.logf("assistant reply: %v", err)
		return
	}

	c.mu.Lock()
	stale := c.state != StateActive || c.sessionID != sessionID
	c.mu.Unlock()
	if stale {
		return
	}

	if c.hub != nil {
		c.hub.BroadcastAssistantReply(reply)
	}
	if c.speaker != nil {
		if err := c.speaker.Speak(ctx, reply); err != nil {
			c.logf("speak reply: %v", err)
		}
	}
}

// handleAnalysis counts completed frame analyses and fans them out.
func (c *Controller) handleAnalysis(analysis vision.Analysis) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return
	}
	c.frameCount++
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.BroadcastFrameAnalysis(analysis)
	}
}

// handleVideoEnded runs when the camera goes away mid-session: the frame
// cycle stops and the dashboard hides its overlay, but audio capture and
// the session itself keep going.
func (c *Controller) handleVideoEnded() {
	c.mu.Lock()
	if c.state != StateActive || !c.mode.NeedsVideo() {
		c.mu.Unlock()
		return
	}
	frames := c.frames
	c.frames = nil
	c.mu.Unlock()

	c.logf("camera track ended mid-session; continuing with audio only")
	if frames != nil {
		frames.Stop()
	}
	if c.perms != nil {
		c.perms.NoteRevoked(media.CapabilityCamera)
	}
	if c.hub != nil {
		c.hub.BroadcastOverlayHidden()
	}
}

func (c *Controller) broadcastState(state State, mode Mode) {
	if c.hub != nil {
		c.hub.BroadcastStateChanged(string(state), string(mode))
	}
}

func (c *Controller) broadcastError(err error) {
	if c.hub == nil || err == nil {
		return
	}
	if de, ok := media.AsDeviceError(err); ok {
		c.hub.BroadcastSessionError(string(de.Code), de.Error(), de.Guidance())
		return
	}
	c.hub.BroadcastSessionError("internal", err.Error(), "")
}
