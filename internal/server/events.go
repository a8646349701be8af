package server

import "time"

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

type StateChangedEvent struct {
	Event
	State string `json:"state"`
	Mode  string `json:"mode"`
}

type SessionStartedEvent struct {
	Event
	SessionID string `json:"session_id"`
	Mode      string `json:"mode"`
}

type SessionEndedEvent struct {
	Event
	SessionID string  `json:"session_id"`
	Duration  float64 `json:"duration"`
}

type WakeDetectedEvent struct {
	Event
	Phrase          string `json:"phrase"`
	CleanTranscript string `json:"clean_transcript,omitempty"`
}

type AssistantReplyEvent struct {
	Event
	Text string `json:"text"`
}

type FrameAnalysisEvent struct {
	Event
	Summary string   `json:"summary"`
	Objects []string `json:"objects,omitempty"`
	People  []string `json:"people,omitempty"`
	Mood    string   `json:"mood,omitempty"`
}

type OverlayHiddenEvent struct {
	Event
}

type PermissionChangedEvent struct {
	Event
	Capability string `json:"capability"`
	State      string `json:"state"`
	Guidance   string `json:"guidance,omitempty"`
}

type SessionErrorEvent struct {
	Event
	Code     string `json:"code"`
	Message  string `json:"message"`
	Guidance string `json:"guidance,omitempty"`
}

type SpeakingChangedEvent struct {
	Event
	Speaking bool `json:"speaking"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
