package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/watchdogsentinel/sentinel/internal/clock"
	"github.com/watchdogsentinel/sentinel/internal/ingest"
	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/notifier"
	"github.com/watchdogsentinel/sentinel/internal/registry"
	"github.com/watchdogsentinel/sentinel/internal/settings"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

func newTestServer(mc *clock.Manual) (*Server, store.Store) {
	mem := store.NewMemoryStore()
	sp := settings.New(mem)
	n := &notifier.NopNotifier{}
	logger := log.New(io.Discard, "", 0)
	deps := Dependencies{
		Logger:    logger,
		Store:     mem,
		Clock:     mc,
		Ingestor:  ingest.New(mem, sp, n, mc, logger),
		Registrar: registry.New(mem),
	}
	return New(Config{}, deps), mem
}

func doRequest(t *testing.T, srv *Server, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestConfigRegistersProjectAndChecks(t *testing.T) {
	mc := clock.NewManual(0)
	srv, _ := newTestServer(mc)

	rr := doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id":   "p1",
		"display_name": "Proj",
		"checks": []map[string]any{
			{"name": "svc", "type": "heartbeat"},
		},
	}, "secret")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp configResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.ProjectID != "p1" || resp.ChecksRegistered != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPulseRoundTripAfterConfig(t *testing.T) {
	mc := clock.NewManual(1000)
	srv, _ := newTestServer(mc)

	doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id": "p1",
		"checks":     []map[string]any{{"name": "svc", "type": "heartbeat"}},
	}, "secret")

	rr := doRequest(t, srv, http.MethodPost, "/api/pulse", map[string]any{
		"project_id": "p1",
		"check_name": "svc",
		"status":     "ok",
	}, "secret")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp pulseResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.CheckID != "p1:svc" || resp.Status != model.StatusOK {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPulseMissingAuthReturns401(t *testing.T) {
	mc := clock.NewManual(0)
	srv, _ := newTestServer(mc)

	rr := doRequest(t, srv, http.MethodPost, "/api/pulse", map[string]any{"check_name": "svc"}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestPulseUnregisteredCheckReturns404(t *testing.T) {
	mc := clock.NewManual(0)
	srv, s := newTestServer(mc)
	if err := s.UpsertProject(context.Background(), model.Project{ID: "p1", Token: "secret"}); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}

	rr := doRequest(t, srv, http.MethodPost, "/api/pulse", map[string]any{
		"project_id": "p1", "check_name": "missing",
	}, "secret")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestMaintenanceTogglesOnAndOff(t *testing.T) {
	mc := clock.NewManual(1000)
	srv, _ := newTestServer(mc)

	doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id": "p1",
		"checks":     []map[string]any{{"name": "svc", "type": "heartbeat"}},
	}, "secret")

	rr := doRequest(t, srv, http.MethodPost, "/api/maintenance/p1", map[string]any{"enabled": true, "duration": 500}, "secret")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp maintenanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MaintenanceUntil != 1500 {
		t.Fatalf("expected maintenance_until=1500, got %d", resp.MaintenanceUntil)
	}

	rr = doRequest(t, srv, http.MethodPost, "/api/maintenance/p1", map[string]any{"enabled": false}, "secret")
	var resp2 maintenanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp2); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp2.MaintenanceUntil != 0 {
		t.Fatalf("expected maintenance_until=0 after disabling, got %d", resp2.MaintenanceUntil)
	}
}

func TestMaintenanceRejectsTokenMismatch(t *testing.T) {
	mc := clock.NewManual(1000)
	srv, _ := newTestServer(mc)
	doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id": "p1",
		"checks":     []map[string]any{{"name": "svc", "type": "heartbeat"}},
	}, "secret")

	rr := doRequest(t, srv, http.MethodPost, "/api/maintenance/p1", map[string]any{"enabled": true}, "wrong-token")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestStatusReturnsProjectSnapshot(t *testing.T) {
	mc := clock.NewManual(1000)
	srv, _ := newTestServer(mc)
	doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id": "p1",
		"checks":     []map[string]any{{"name": "svc", "type": "heartbeat"}},
	}, "secret")

	rr := doRequest(t, srv, http.MethodGet, "/api/status/p1", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var snap projectSnapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ProjectID != "p1" || len(snap.Checks) != 1 || snap.Checks[0].Name != "svc" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStatusAllProjectsReturnsEveryProject(t *testing.T) {
	mc := clock.NewManual(1000)
	srv, _ := newTestServer(mc)
	doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id": "p1",
		"checks":     []map[string]any{{"name": "svc", "type": "heartbeat"}},
	}, "secret-1")
	doRequest(t, srv, http.MethodPut, "/api/config", map[string]any{
		"project_id": "p2",
		"checks":     []map[string]any{{"name": "svc", "type": "heartbeat"}},
	}, "secret-2")

	rr := doRequest(t, srv, http.MethodGet, "/api/status", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Projects []projectSnapshot `json:"projects"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(body.Projects))
	}
}
