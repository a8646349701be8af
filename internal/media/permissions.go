package media

import (
	"context"
	"sync"
)

// Prober checks whether a capability can be acquired without keeping it.
type Prober interface {
	Probe(ctx context.Context, capability Capability) error
}

// Coordinator tracks permission state per capability. It is the sole
// writer of permission state; any component may read it.
type Coordinator struct {
	prober Prober

	mu       sync.Mutex
	states   map[Capability]PermissionState
	lastErr  map[Capability]*DeviceError
	onChange func(Capability, PermissionState)
}

// NewCoordinator starts every capability at Unknown.
func NewCoordinator(prober Prober) *Coordinator {
	return &Coordinator{
		prober: prober,
		states: map[Capability]PermissionState{
			CapabilityMicrophone: PermissionUnknown,
			CapabilityCamera:     PermissionUnknown,
		},
		lastErr: make(map[Capability]*DeviceError),
	}
}

// OnChange registers a callback fired on every state transition.
func (c *Coordinator) OnChange(fn func(Capability, PermissionState)) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

// State returns the tracked state for a capability.
func (c *Coordinator) State(capability Capability) PermissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[capability]; ok {
		return s
	}
	return PermissionUnknown
}

// States returns a snapshot of all tracked capabilities.
func (c *Coordinator) States() map[Capability]PermissionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Capability]PermissionState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// Guidance returns fix-it text for the last failed request, if any.
func (c *Coordinator) Guidance(capability Capability) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if de := c.lastErr[capability]; de != nil {
		return de.Guidance()
	}
	return ""
}

// Request attempts a probe acquisition for the capability. The probe
// stream is released immediately on success; a granted permission never
// holds a live device open. Failures are classified and remembered so
// Guidance can explain them.
func (c *Coordinator) Request(ctx context.Context, capability Capability) (PermissionState, error) {
	c.transition(capability, PermissionRequesting)

	if err := c.prober.Probe(ctx, capability); err != nil {
		de := Classify(capability, err)
		c.mu.Lock()
		c.lastErr[capability] = de
		c.mu.Unlock()
		c.transition(capability, PermissionDenied)
		return PermissionDenied, de
	}

	c.mu.Lock()
	delete(c.lastErr, capability)
	c.mu.Unlock()
	c.transition(capability, PermissionGranted)
	return PermissionGranted, nil
}

// NoteRevoked records an external revocation (e.g. a video track ending
// because access was withdrawn via OS chrome mid-session).
func (c *Coordinator) NoteRevoked(capability Capability) {
	c.transition(capability, PermissionDenied)
}

// NoteGranted records a grant observed as a side effect of a successful
// session acquisition, so the dashboard state stays truthful without a
// separate probe.
func (c *Coordinator) NoteGranted(capability Capability) {
	c.transition(capability, PermissionGranted)
}

func (c *Coordinator) transition(capability Capability, next PermissionState) {
	c.mu.Lock()
	prev := c.states[capability]
	c.states[capability] = next
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil && prev != next {
		fn(capability, next)
	}
}
