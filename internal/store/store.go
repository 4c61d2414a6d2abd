// Package store persists projects, checks, logs, and settings, and exposes
// the row read/upsert/conditional-update primitives the rest of the core
// relies on (spec.md §4, item 2). Two implementations are provided: an
// in-memory store for tests and local development, and a PostgreSQL-backed
// store for production (postgres.go).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/watchdogsentinel/sentinel/internal/model"
)

// Store is the persistence boundary consumed by the ingestor, sweeper, and
// registrar.
type Store interface {
	GetProject(ctx context.Context, id string) (model.Project, error)
	FindProjectByToken(ctx context.Context, token string) (model.Project, error)
	ListProjects(ctx context.Context) ([]model.Project, error)
	UpsertProject(ctx context.Context, p model.Project) error
	SetMaintenance(ctx context.Context, projectID string, until int64) error

	GetCheck(ctx context.Context, checkID string) (model.Check, error)
	UpsertCheckRule(ctx context.Context, c model.Check) error
	UpdateCheckState(ctx context.Context, c model.Check, expectedVersion int64) error
	ListChecksByProject(ctx context.Context, projectID string) ([]model.Check, error)
	ListOverdueHeartbeats(ctx context.Context, now int64) ([]model.Check, error)

	AppendLog(ctx context.Context, l model.LogEntry) error
	PruneLogs(ctx context.Context, olderThan int64) (int64, error)

	GetSettings(ctx context.Context) (model.Settings, error)
	UpdateSettings(ctx context.Context, s model.Settings) error
}

// SelfHealthCheckID is the well-known sweeper self-pulse check (spec.md §4.3).
const SelfHealthCheckID = "watch-dog:self-health"

// NewMemoryStore returns an in-memory implementation useful for local
// development and tests, mirroring the shape of the teacher's memoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: map[string]model.Project{},
		checks:   map[string]model.Check{},
		logs:     []model.LogEntry{},
		settings: model.DefaultSettings(),
	}
}

// MemoryStore is a sync.RWMutex-guarded in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]model.Project
	checks   map[string]model.Check
	logs     []model.LogEntry
	settings model.Settings
}

func (m *MemoryStore) GetProject(_ context.Context, id string) (model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return model.Project{}, model.ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) FindProjectByToken(_ context.Context, token string) (model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.projects {
		if p.Token == token {
			return p, nil
		}
	}
	return model.Project{}, model.ErrNotFound
}

func (m *MemoryStore) ListProjects(_ context.Context) ([]model.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertProject(_ context.Context, p model.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.projects[p.ID]; ok {
		// Preserve maintenance_until and created_at, as spec.md §4.6 requires.
		p.MaintenanceUntil = existing.MaintenanceUntil
		p.CreatedAt = existing.CreatedAt
	}
	m.projects[p.ID] = p
	return nil
}

func (m *MemoryStore) SetMaintenance(_ context.Context, projectID string, until int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.projects[projectID]
	if !ok {
		return model.ErrNotFound
	}
	p.MaintenanceUntil = until
	m.projects[projectID] = p
	return nil
}

func (m *MemoryStore) GetCheck(_ context.Context, checkID string) (model.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.checks[checkID]
	if !ok {
		return model.Check{}, model.ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) UpsertCheckRule(_ context.Context, c model.Check) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := c.ID()
	if existing, ok := m.checks[id]; ok {
		// Rule attributes are overwritten; state attributes are untouched.
		existing.CheckRule = c.CheckRule
		m.checks[id] = existing
		return nil
	}
	c.Status = model.StatusOK
	c.LastSeen = 0
	c.FailureCount = 0
	c.LastAlertAt = 0
	c.LastMessage = ""
	c.Version = 0
	m.checks[id] = c
	return nil
}

func (m *MemoryStore) UpdateCheckState(_ context.Context, c model.Check, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := c.ID()
	current, ok := m.checks[id]
	if !ok {
		return model.ErrNotFound
	}
	if current.Version != expectedVersion {
		return model.ErrConflict
	}
	c.Version = expectedVersion + 1
	m.checks[id] = c
	return nil
}

func (m *MemoryStore) ListChecksByProject(_ context.Context, projectID string) ([]model.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []model.Check
	for _, c := range m.checks {
		if c.ProjectID == projectID {
			results = append(results, c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results, nil
}

func (m *MemoryStore) ListOverdueHeartbeats(_ context.Context, now int64) ([]model.Check, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var results []model.Check
	for id, c := range m.checks {
		if id == SelfHealthCheckID {
			continue
		}
		if c.Type != model.CheckHeartbeat || !c.Monitor || c.Status == model.StatusDead {
			continue
		}
		if c.LastSeen+c.Interval+c.Grace < now {
			results = append(results, c)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID() < results[j].ID() })
	return results, nil
}

func (m *MemoryStore) AppendLog(_ context.Context, l model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	m.logs = append(m.logs, l)
	return nil
}

func (m *MemoryStore) PruneLogs(_ context.Context, olderThan int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.logs[:0]
	var pruned int64
	for _, l := range m.logs {
		if l.CreatedAt < olderThan {
			pruned++
			continue
		}
		kept = append(kept, l)
	}
	m.logs = kept
	return pruned, nil
}

func (m *MemoryStore) GetSettings(_ context.Context) (model.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings, nil
}

func (m *MemoryStore) UpdateSettings(_ context.Context, s model.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

// LogsForCheck returns all log rows recorded for a check, oldest first.
// Exposed for tests; production callers query logs through the database
// directly since PostgresStore has no equivalent in-process cache to read.
func (m *MemoryStore) LogsForCheck(checkID string) []model.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.LogEntry
	for _, l := range m.logs {
		if l.CheckID == checkID {
			out = append(out, l)
		}
	}
	return out
}
