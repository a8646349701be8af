package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/cartrita/livectl/internal/media"
	"github.com/cartrita/livectl/internal/vision"
)

type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastStateChanged(state, mode string) {
	h.broadcastEvent(StateChangedEvent{
		Event: newEvent("state_changed", time.Now().UTC()),
		State: state,
		Mode:  mode,
	})
}

func (h *Hub) BroadcastSessionStarted(sessionID, mode string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		SessionID: sessionID,
		Mode:      mode,
	})
}

func (h *Hub) BroadcastSessionEnded(sessionID string, duration time.Duration) {
	h.broadcastEvent(SessionEndedEvent{
		Event:     newEvent("session_ended", time.Now().UTC()),
		SessionID: sessionID,
		Duration:  duration.Seconds(),
	})
}

func (h *Hub) BroadcastWakeDetected(phrase, cleanTranscript string) {
	h.broadcastEvent(WakeDetectedEvent{
		Event:           newEvent("wake_detected", time.Now().UTC()),
		Phrase:          phrase,
		CleanTranscript: cleanTranscript,
	})
}

func (h *Hub) BroadcastAssistantReply(text string) {
	h.broadcastEvent(AssistantReplyEvent{
		Event: newEvent("assistant_reply", time.Now().UTC()),
		Text:  text,
	})
}

func (h *Hub) BroadcastFrameAnalysis(analysis vision.Analysis) {
	h.broadcastEvent(FrameAnalysisEvent{
		Event:   newEvent("frame_analysis", time.Now().UTC()),
		Summary: analysis.Summary,
		Objects: analysis.Objects,
		People:  analysis.People,
		Mood:    analysis.Mood,
	})
}

func (h *Hub) BroadcastOverlayHidden() {
	h.broadcastEvent(OverlayHiddenEvent{
		Event: newEvent("overlay_hidden", time.Now().UTC()),
	})
}

func (h *Hub) BroadcastPermissionChanged(capability media.Capability, state media.PermissionState, guidance string) {
	h.broadcastEvent(PermissionChangedEvent{
		Event:      newEvent("permission_changed", time.Now().UTC()),
		Capability: string(capability),
		State:      string(state),
		Guidance:   guidance,
	})
}

func (h *Hub) BroadcastSessionError(code, message, guidance string) {
	h.broadcastEvent(SessionErrorEvent{
		Event:    newEvent("session_error", time.Now().UTC()),
		Code:     code,
		Message:  message,
		Guidance: guidance,
	})
}

func (h *Hub) BroadcastSpeakingChanged(speaking bool) {
	h.broadcastEvent(SpeakingChangedEvent{
		Event:    newEvent("speaking_changed", time.Now().UTC()),
		Speaking: speaking,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
