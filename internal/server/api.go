package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/cartrita/livectl/internal/media"
	"github.com/cartrita/livectl/internal/session"
	"github.com/cartrita/livectl/internal/storage"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// SessionControl is the slice of the session controller the API needs.
type SessionControl interface {
	Start(ctx context.Context, mode session.Mode) (session.Status, error)
	Stop(ctx context.Context) error
	Status() session.Status
}

// PermissionControl is the slice of the permission coordinator the API needs.
type PermissionControl interface {
	Request(ctx context.Context, capability media.Capability) (media.PermissionState, error)
	States() map[media.Capability]media.PermissionState
	Guidance(capability media.Capability) string
}

// SessionStore serves the session history endpoints.
type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetDates() ([]string, error)
}

func registerAPIRoutes(mux *http.ServeMux, control SessionControl, perms PermissionControl, store SessionStore, warnings func() []string) {
	mux.HandleFunc("POST /api/session/start", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Mode string `json:"mode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
			return
		}

		mode, err := session.ParseMode(req.Mode)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		status, err := control.Start(r.Context(), mode)
		if err != nil {
			if errors.Is(err, session.ErrStopping) {
				writeJSONError(w, http.StatusConflict, err.Error())
				return
			}
			if de, ok := media.AsDeviceError(err); ok {
				writeJSON(w, http.StatusInternalServerError, map[string]string{
					"error":    de.Error(),
					"code":     string(de.Code),
					"guidance": de.Guidance(),
				})
				return
			}
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("POST /api/session/stop", func(w http.ResponseWriter, r *http.Request) {
		if err := control.Stop(r.Context()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, control.Status())
	})

	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		warningList := []string{}
		if warnings != nil {
			if got := warnings(); got != nil {
				warningList = got
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session":  control.Status(),
			"warnings": warningList,
		})
	})

	mux.HandleFunc("GET /api/permissions", func(w http.ResponseWriter, r *http.Request) {
		states := perms.States()
		out := make(map[string]any, len(states))
		for capability, state := range states {
			entry := map[string]string{"state": string(state)}
			if guidance := perms.Guidance(capability); guidance != "" {
				entry["guidance"] = guidance
			}
			out[string(capability)] = entry
		}
		writeJSON(w, http.StatusOK, out)
	})

	mux.HandleFunc("POST /api/permissions/{capability}/request", func(w http.ResponseWriter, r *http.Request) {
		capability, ok := parseCapability(r.PathValue("capability"))
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "unknown capability")
			return
		}

		state, err := perms.Request(r.Context(), capability)
		payload := map[string]string{
			"capability": string(capability),
			"state":      string(state),
		}
		if err != nil {
			payload["guidance"] = perms.Guidance(capability)
		}
		writeJSON(w, http.StatusOK, payload)
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		sessions, err := store.GetSessionsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		record, err := store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, record)
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, dates)
	})
}

func parseCapability(s string) (media.Capability, bool) {
	switch media.Capability(s) {
	case media.CapabilityMicrophone, media.CapabilityCamera:
		return media.Capability(s), true
	default:
		return "", false
	}
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
