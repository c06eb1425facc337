package observer

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tapehouse/controltape/internal/registry"
)

func newTestServer(t *testing.T, reg *registry.Registry) *Server {
	t.Helper()
	s, err := New(reg, "", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, registry.New(0))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Fatalf("expected body \"ok\", got %q", rec.Body.String())
	}
}

func TestSessionsEndpointListsRegisteredSessions(t *testing.T) {
	reg := registry.New(0)
	s := newTestServer(t, reg)

	sess, err := reg.Control("echo observer-test", false)
	if err != nil {
		t.Fatalf("Control: %v", err)
	}
	defer sess.Close(true)

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected a non-empty JSON body")
	}
}

func TestCreateSessionRegistersAndReturnsID(t *testing.T) {
	reg := registry.New(0)
	s := newTestServer(t, reg)

	body, _ := json.Marshal(createSessionRequest{Command: "echo observer-create-test"})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] == "" {
		t.Fatalf("expected a non-empty session id")
	}
	if reg.Get(resp["id"]) == nil {
		t.Fatalf("expected session %s to be registered", resp["id"])
	}
}

func TestCreateSessionRejectsEmptyCommand(t *testing.T) {
	s := newTestServer(t, registry.New(0))

	body, _ := json.Marshal(createSessionRequest{Command: ""})
	req := httptest.NewRequest(http.MethodPost, "/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty command, got %d", rec.Code)
	}
}

func TestTailUnknownSessionReturns404(t *testing.T) {
	s := newTestServer(t, registry.New(0))

	req := httptest.NewRequest(http.MethodGet, "/ws/does-not-exist", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}
