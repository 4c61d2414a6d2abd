// Package httpapi wires the external interfaces in spec.md §6 onto the
// Ingestor, Registrar, and Store, grounded on
// controller/internal/server.Server's Config/Dependencies/handler-closure
// shape.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/watchdogsentinel/sentinel/internal/clock"
	"github.com/watchdogsentinel/sentinel/internal/ingest"
	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/registry"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

// defaultMaintenanceDuration is applied when a maintenance toggle omits an
// explicit duration (spec.md §6.3).
const defaultMaintenanceDuration = 3600

// Config controls HTTP server settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger    *log.Logger
	Store     store.Store
	Clock     clock.Clock
	Ingestor  *ingest.Ingestor
	Registrar *registry.Registrar
}

// Server wraps http.Server for convenience.
type Server struct {
	*http.Server
	deps Dependencies
}

// New constructs an HTTP server exposing the pulse, config, maintenance,
// and status endpoints.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/pulse", pulseHandler(deps)).Methods(http.MethodPost)
	r.HandleFunc("/api/config", configHandler(deps)).Methods(http.MethodPut)
	r.HandleFunc("/api/maintenance/{project_id}", maintenanceHandler(deps)).Methods(http.MethodPost)
	r.HandleFunc("/api/status", statusHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/api/status/{project_id}", statusHandler(deps)).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	s := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return &Server{Server: s, deps: deps}
}

type pulseRequest struct {
	ProjectID *string `json:"project_id,omitempty"`
	CheckName string  `json:"check_name"`
	Status    string  `json:"status,omitempty"`
	Message   string  `json:"message,omitempty"`
	Latency   int64   `json:"latency,omitempty"`
}

type pulseResponse struct {
	Success   bool         `json:"success"`
	CheckID   string       `json:"check_id"`
	Status    model.Status `json:"status"`
	Timestamp int64        `json:"timestamp"`
}

func pulseHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pulseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, deps, invalidRequestf("malformed request body"))
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, deps, model.ErrUnauthorized)
			return
		}

		ack, err := deps.Ingestor.Ingest(r.Context(), token, req.ProjectID, req.CheckName, req.Status, req.Message, req.Latency)
		if err != nil {
			writeError(w, deps, err)
			return
		}

		writeJSON(w, deps, http.StatusOK, pulseResponse{
			Success: true, CheckID: ack.CheckID, Status: ack.Status, Timestamp: ack.Timestamp,
		})
	}
}

type configCheckRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	Type        string `json:"type"`
	Interval    *int64 `json:"interval,omitempty"`
	Grace       *int64 `json:"grace,omitempty"`
	Threshold   *int   `json:"threshold,omitempty"`
	Cooldown    *int64 `json:"cooldown,omitempty"`
}

type configRequest struct {
	ProjectID   string               `json:"project_id"`
	DisplayName string               `json:"display_name,omitempty"`
	Checks      []configCheckRequest `json:"checks"`
}

type configResponse struct {
	Success          bool   `json:"success"`
	ProjectID        string `json:"project_id"`
	ChecksRegistered int    `json:"checks_registered"`
}

func configHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req configRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, deps, invalidRequestf("malformed request body"))
			return
		}

		token, err := extractToken(r)
		if err != nil {
			writeError(w, deps, model.ErrUnauthorized)
			return
		}

		inputs := make([]registry.CheckInput, 0, len(req.Checks))
		for _, c := range req.Checks {
			inputs = append(inputs, registry.CheckInput{
				Name:        c.Name,
				DisplayName: c.DisplayName,
				Type:        model.CheckType(c.Type),
				Interval:    c.Interval,
				Grace:       c.Grace,
				Threshold:   c.Threshold,
				Cooldown:    c.Cooldown,
			})
		}

		project, checks, err := deps.Registrar.Register(r.Context(), token, req.ProjectID, req.DisplayName, inputs)
		if err != nil {
			writeError(w, deps, err)
			return
		}

		writeJSON(w, deps, http.StatusOK, configResponse{
			Success: true, ProjectID: project.ID, ChecksRegistered: len(checks),
		})
	}
}

type maintenanceRequest struct {
	Duration *int  `json:"duration,omitempty"`
	Enabled  *bool `json:"enabled,omitempty"`
}

type maintenanceResponse struct {
	Success          bool   `json:"success"`
	ProjectID        string `json:"project_id"`
	MaintenanceUntil int64  `json:"maintenance_until"`
}

func maintenanceHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := mux.Vars(r)["project_id"]

		token, err := extractToken(r)
		if err != nil {
			writeError(w, deps, model.ErrUnauthorized)
			return
		}

		project, err := deps.Store.GetProject(r.Context(), projectID)
		if err != nil {
			writeError(w, deps, err)
			return
		}
		if project.Token != token {
			writeError(w, deps, model.ErrForbidden)
			return
		}

		var req maintenanceRequest
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, deps, invalidRequestf("malformed request body"))
				return
			}
		}

		now := deps.Clock.Now()
		until := resolveMaintenanceUntil(project.MaintenanceUntil, now, req.Enabled, req.Duration)

		if err := deps.Store.SetMaintenance(r.Context(), projectID, until); err != nil {
			writeError(w, deps, err)
			return
		}

		writeJSON(w, deps, http.StatusOK, maintenanceResponse{Success: true, ProjectID: projectID, MaintenanceUntil: until})
	}
}

// resolveMaintenanceUntil implements spec.md §6.3's toggle semantics:
// enabled=true sets maintenance_until = now + (duration ?? 3600);
// enabled=false sets it to 0; omitted toggles the current state.
func resolveMaintenanceUntil(current, now int64, enabled *bool, duration *int) int64 {
	dur := int64(defaultMaintenanceDuration)
	if duration != nil {
		dur = int64(*duration)
	}
	if enabled != nil {
		if *enabled {
			return now + dur
		}
		return 0
	}
	if current > now {
		return 0
	}
	return now + dur
}

type checkSnapshot struct {
	Name         string          `json:"name"`
	DisplayName  string          `json:"display_name,omitempty"`
	Type         model.CheckType `json:"type"`
	Status       model.Status    `json:"status"`
	LastSeen     int64           `json:"last_seen"`
	FailureCount int             `json:"failure_count"`
	LastAlertAt  int64           `json:"last_alert_at,omitempty"`
	LastMessage  string          `json:"last_message,omitempty"`
}

type projectSnapshot struct {
	ProjectID        string          `json:"project_id"`
	DisplayName      string          `json:"display_name,omitempty"`
	MaintenanceUntil int64           `json:"maintenance_until"`
	Checks           []checkSnapshot `json:"checks"`
}

func statusHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := mux.Vars(r)["project_id"]
		if projectID != "" {
			snap, err := buildProjectSnapshot(r.Context(), deps, projectID)
			if err != nil {
				writeError(w, deps, err)
				return
			}
			writeJSON(w, deps, http.StatusOK, snap)
			return
		}

		projects, err := deps.Store.ListProjects(r.Context())
		if err != nil {
			writeError(w, deps, err)
			return
		}
		snapshots := make([]projectSnapshot, 0, len(projects))
		for _, p := range projects {
			snap, err := buildProjectSnapshot(r.Context(), deps, p.ID)
			if err != nil {
				deps.Logger.Printf("httpapi: status snapshot for %s: %v", p.ID, err)
				continue
			}
			snapshots = append(snapshots, snap)
		}
		writeJSON(w, deps, http.StatusOK, struct {
			Projects []projectSnapshot `json:"projects"`
		}{Projects: snapshots})
	}
}

func buildProjectSnapshot(ctx context.Context, deps Dependencies, projectID string) (projectSnapshot, error) {
	project, err := deps.Store.GetProject(ctx, projectID)
	if err != nil {
		return projectSnapshot{}, err
	}
	checks, err := deps.Store.ListChecksByProject(ctx, projectID)
	if err != nil {
		return projectSnapshot{}, err
	}
	snap := projectSnapshot{
		ProjectID:        project.ID,
		DisplayName:      project.DisplayName,
		MaintenanceUntil: project.MaintenanceUntil,
		Checks:           make([]checkSnapshot, 0, len(checks)),
	}
	for _, c := range checks {
		snap.Checks = append(snap.Checks, checkSnapshot{
			Name:         c.Name,
			DisplayName:  c.DisplayName,
			Type:         c.Type,
			Status:       c.Status,
			LastSeen:     c.LastSeen,
			FailureCount: c.FailureCount,
			LastAlertAt:  c.LastAlertAt,
			LastMessage:  c.LastMessage,
		})
	}
	return snap, nil
}

// extractToken accepts both the documented Authorization: Bearer <token>
// header and the legacy X-Project-Token header (spec.md §6.1), grounded on
// controller/internal/server.extractAgentID's mode-switch shape, adapted
// from a two-mode switch to a two-header fallback.
func extractToken(r *http.Request) (string, error) {
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		token := strings.TrimSpace(strings.TrimPrefix(auth, prefix))
		if token != "" {
			return token, nil
		}
	}
	if legacy := strings.TrimSpace(r.Header.Get("X-Project-Token")); legacy != "" {
		return legacy, nil
	}
	return "", errors.New("missing bearer token")
}

func invalidRequestf(msg string) error {
	return fmt.Errorf("%w: %s", model.ErrInvalidRequest, msg)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the core's sentinel error taxonomy onto the status codes
// required by spec.md §6.1/§7.
func writeError(w http.ResponseWriter, deps Dependencies, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrConflict):
		status = http.StatusServiceUnavailable
	default:
		deps.Logger.Printf("httpapi: internal error: %v", err)
	}
	writeJSON(w, deps, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, deps Dependencies, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		deps.Logger.Printf("httpapi: encode response: %v", err)
	}
}
