package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cartrita/livectl/internal/media"
)

func TestWSBroadcastEventShape(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	hub.BroadcastWakeDetected("Cartrita", "what's the weather")

	select {
	case msg := <-ch:
		var payload map[string]any
		if err := json.Unmarshal(msg, &payload); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if payload["type"] != "wake_detected" {
			t.Fatalf("expected event type wake_detected, got %#v", payload["type"])
		}
		if payload["phrase"] != "Cartrita" {
			t.Fatalf("expected wake phrase in payload, got %s", string(msg))
		}
		if payload["version"] == nil {
			t.Fatalf("expected version field in payload: %s", string(msg))
		}
		if payload["timestamp"] == nil {
			t.Fatalf("expected timestamp field in payload: %s", string(msg))
		}
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for websocket broadcast")
	}
}

func TestHubSlowSubscriberDoesNotBlockBroadcast(t *testing.T) {
	hub := NewHub()
	ch := hub.Subscribe()
	defer hub.Unsubscribe(ch)

	// Overfill the subscriber's buffer; Broadcast must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.BroadcastOverlayHidden()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestServeWSGreetsThenStreamsEvents(t *testing.T) {
	hub := NewHub()
	perms := &permsStub{states: map[media.Capability]media.PermissionState{}}
	srv := httptest.NewServer(Handler(hub, &controlStub{}, perms, apiStoreStub{}, nil))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()
	defer func() { _ = resp.Body.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read greeting failed: %v", err)
	}
	var greeting map[string]any
	if err := json.Unmarshal(msg, &greeting); err != nil {
		t.Fatalf("unmarshal greeting failed: %v", err)
	}
	if greeting["type"] != "connection" {
		t.Fatalf("expected connection greeting first, got %s", string(msg))
	}
	if greeting["connected"] != true {
		t.Fatalf("expected connected flag in greeting: %s", string(msg))
	}
	if greeting["version"] == nil {
		t.Fatalf("expected schema version in greeting: %s", string(msg))
	}

	// The subscription is registered after the greeting write; keep
	// broadcasting until the subscriber picks one up.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.BroadcastStateChanged("active", "voice")
			}
		}
	}()

	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast failed: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(msg, &event); err != nil {
		t.Fatalf("unmarshal event failed: %v", err)
	}
	if event["type"] != "state_changed" || event["state"] != "active" {
		t.Fatalf("unexpected event after greeting: %s", string(msg))
	}
}
