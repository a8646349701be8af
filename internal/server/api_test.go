package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cartrita/livectl/internal/media"
	"github.com/cartrita/livectl/internal/session"
	"github.com/cartrita/livectl/internal/storage"
)

type controlStub struct {
	mu       sync.Mutex
	status   session.Status
	startErr error
	started  []session.Mode
	stops    int
}

func (c *controlStub) Start(_ context.Context, mode session.Mode) (session.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, mode)
	if c.startErr != nil {
		return session.Status{}, c.startErr
	}
	c.status = session.Status{State: session.StateActive, Mode: mode, SessionID: "s1"}
	return c.status, nil
}

func (c *controlStub) Stop(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.status = session.Status{State: session.StateIdle, Mode: session.ModeNone}
	return nil
}

func (c *controlStub) Status() session.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.State == "" {
		return session.Status{State: session.StateIdle, Mode: session.ModeNone}
	}
	return c.status
}

type permsStub struct {
	states   map[media.Capability]media.PermissionState
	guidance map[media.Capability]string
	err      error
}

func (p *permsStub) Request(_ context.Context, capability media.Capability) (media.PermissionState, error) {
	if p.err != nil {
		return media.PermissionDenied, p.err
	}
	return media.PermissionGranted, nil
}

func (p *permsStub) States() map[media.Capability]media.PermissionState {
	return p.states
}

func (p *permsStub) Guidance(capability media.Capability) string {
	return p.guidance[capability]
}

type apiStoreStub struct {
	sessionsByDate map[string][]storage.Session
	sessions       map[string]storage.Session
	dates          []string
}

func (s apiStoreStub) GetSessionsByDate(date string) ([]storage.Session, error) {
	return s.sessionsByDate[date], nil
}

func (s apiStoreStub) GetSession(id string) (storage.Session, error) {
	if record, ok := s.sessions[id]; ok {
		return record, nil
	}
	return storage.Session{}, sql.ErrNoRows
}

func (s apiStoreStub) GetDates() ([]string, error) {
	return s.dates, nil
}

func testHandler(control SessionControl, perms PermissionControl, store SessionStore, warnings func() []string) http.Handler {
	if perms == nil {
		perms = &permsStub{states: map[media.Capability]media.PermissionState{}}
	}
	return Handler(NewHub(), control, perms, store, warnings)
}

func TestAPISessionStart(t *testing.T) {
	control := &controlStub{}
	h := testHandler(control, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/start", strings.NewReader(`{"mode":"voice"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	var got session.Status
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if got.State != session.StateActive || got.Mode != session.ModeVoice {
		t.Fatalf("unexpected status %+v", got)
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if len(control.started) != 1 || control.started[0] != session.ModeVoice {
		t.Fatalf("unexpected start calls %v", control.started)
	}
}

func TestAPISessionStartInvalidMode(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/start", strings.NewReader(`{"mode":"video"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAPISessionStartDeviceErrorIncludesGuidance(t *testing.T) {
	control := &controlStub{
		startErr: media.NewDeviceError(media.CodeNotReadable, media.CapabilityMicrophone, nil),
	}
	h := testHandler(control, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/start", strings.NewReader(`{"mode":"voice"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}

	var got map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	if got["code"] != "not_readable" {
		t.Fatalf("expected not_readable code, got %q", got["code"])
	}
	if got["guidance"] == "" {
		t.Fatal("expected guidance in response")
	}
}

func TestAPISessionStartWhileStopping(t *testing.T) {
	control := &controlStub{startErr: session.ErrStopping}
	h := testHandler(control, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/start", strings.NewReader(`{"mode":"text"}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
}

func TestAPISessionStop(t *testing.T) {
	control := &controlStub{}
	h := testHandler(control, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/session/stop", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	control.mu.Lock()
	defer control.mu.Unlock()
	if control.stops != 1 {
		t.Fatalf("expected 1 stop call, got %d", control.stops)
	}
}

func TestAPISessionStatusWithWarnings(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{}, func() []string {
		return []string{"assistant base URL not configured"}
	})

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"state":"idle"`) {
		t.Fatalf("expected idle state in response, got %s", body)
	}
	if !strings.Contains(body, "assistant base URL not configured") {
		t.Fatalf("expected warning message in response, got %s", body)
	}
}

func TestAPISessionStatusNoWarnings(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if !strings.Contains(rr.Body.String(), `"warnings":[]`) {
		t.Fatalf("expected empty warnings array, got %s", rr.Body.String())
	}
}

func TestAPIPermissionsList(t *testing.T) {
	perms := &permsStub{
		states: map[media.Capability]media.PermissionState{
			media.CapabilityMicrophone: media.PermissionGranted,
			media.CapabilityCamera:     media.PermissionDenied,
		},
		guidance: map[media.Capability]string{
			media.CapabilityCamera: "Access to the camera was denied.",
		},
	}
	h := testHandler(&controlStub{}, perms, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/permissions", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"microphone"`) || !strings.Contains(body, `"granted"`) {
		t.Fatalf("expected microphone grant in response, got %s", body)
	}
	if !strings.Contains(body, "Access to the camera was denied.") {
		t.Fatalf("expected camera guidance in response, got %s", body)
	}
}

func TestAPIPermissionRequest(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/permissions/camera/request", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"granted"`) {
		t.Fatalf("expected granted state, got %s", rr.Body.String())
	}
}

func TestAPIPermissionRequestUnknownCapability(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/permissions/speaker/request", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAPISessionsList(t *testing.T) {
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	store := apiStoreStub{
		sessionsByDate: map[string][]storage.Session{
			"2026-08-30": {{ID: "s1", Mode: "voice", StartedAt: started, Status: "completed"}},
		},
		dates: []string{"2026-08-30"},
	}

	h := testHandler(&controlStub{}, nil, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions?date=2026-08-30", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("expected application/json content-type, got %q", got)
	}
	if !strings.Contains(rr.Body.String(), "s1") {
		t.Fatalf("expected body to contain session id, got %s", rr.Body.String())
	}
}

func TestAPISessionDetail(t *testing.T) {
	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	store := apiStoreStub{
		sessions: map[string]storage.Session{
			"s1": {ID: "s1", Mode: "multimodal", StartedAt: started, Status: "completed", WakeCount: 2},
		},
	}

	h := testHandler(&controlStub{}, nil, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "multimodal") {
		t.Fatalf("expected detail response to contain mode, got %s", rr.Body.String())
	}
}

func TestAPISessionDetailNotFound(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{sessions: map[string]storage.Session{}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestAPISessionDetailInvalidID(t *testing.T) {
	h := testHandler(&controlStub{}, nil, apiStoreStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/%2e%2e%2fetc", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden && rr.Code != http.StatusNotFound {
		t.Fatalf("expected forbidden/notfound for traversal, got %d", rr.Code)
	}
}

func TestAPIDates(t *testing.T) {
	store := apiStoreStub{dates: []string{"2026-08-30", "2026-08-29"}}
	h := testHandler(&controlStub{}, nil, store, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/dates", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "2026-08-30") {
		t.Fatalf("expected date in response, got %s", rr.Body.String())
	}
}
