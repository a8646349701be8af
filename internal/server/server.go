package server

import (
	"net/http"
)

// Handler assembles the daemon's HTTP surface: the websocket event feed,
// the session control API, and the session history API.
func Handler(hub *Hub, control SessionControl, perms PermissionControl, store SessionStore, warnings func() []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", hub.ServeWS)
	registerAPIRoutes(mux, control, perms, store, warnings)

	return mux
}
