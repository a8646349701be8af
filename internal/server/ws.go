package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and streams hub events to one dashboard
// client until it disconnects. The first message is a connection greeting
// carrying the event schema version, so a stale dashboard can notice a
// mismatch before interpreting anything else.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	greeting, err := json.Marshal(ConnectionEvent{
		Event:     newEvent("connection", time.Now().UTC()),
		Connected: true,
	})
	if err != nil {
		log.Printf("ws greeting marshal error: %v", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, greeting); err != nil {
		return
	}

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	for msg := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
