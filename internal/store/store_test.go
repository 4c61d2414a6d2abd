package store

import (
	"context"
	"testing"

	"github.com/watchdogsentinel/sentinel/internal/model"
)

func TestMemoryStoreProjectRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.UpsertProject(ctx, model.Project{ID: "p1", Token: "tok", DisplayName: "One"}); err != nil {
		t.Fatalf("UpsertProject: %v", err)
	}
	p, err := s.GetProject(ctx, "p1")
	if err != nil {
		t.Fatalf("GetProject: %v", err)
	}
	if p.DisplayName != "One" {
		t.Fatalf("unexpected project: %+v", p)
	}

	found, err := s.FindProjectByToken(ctx, "tok")
	if err != nil || found.ID != "p1" {
		t.Fatalf("FindProjectByToken: %+v, %v", found, err)
	}

	if err := s.SetMaintenance(ctx, "p1", 500); err != nil {
		t.Fatalf("SetMaintenance: %v", err)
	}
	// Re-upsert must preserve maintenance_until.
	if err := s.UpsertProject(ctx, model.Project{ID: "p1", Token: "tok2", DisplayName: "One Updated"}); err != nil {
		t.Fatalf("UpsertProject (update): %v", err)
	}
	p, _ = s.GetProject(ctx, "p1")
	if p.MaintenanceUntil != 500 {
		t.Fatalf("expected maintenance_until preserved, got %d", p.MaintenanceUntil)
	}
	if p.Token != "tok2" {
		t.Fatalf("expected token overwritten, got %s", p.Token)
	}
}

func TestMemoryStoreListProjectsSortedByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.UpsertProject(ctx, model.Project{ID: "p2", Token: "b"}); err != nil {
		t.Fatalf("UpsertProject p2: %v", err)
	}
	if err := s.UpsertProject(ctx, model.Project{ID: "p1", Token: "a"}); err != nil {
		t.Fatalf("UpsertProject p1: %v", err)
	}
	projects, err := s.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(projects) != 2 || projects[0].ID != "p1" || projects[1].ID != "p2" {
		t.Fatalf("expected projects sorted by id, got %+v", projects)
	}
}

func TestMemoryStoreCheckRuleUpsertPreservesState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := model.Check{CheckRule: model.CheckRule{ProjectID: "p1", Name: "svc", Type: model.CheckHeartbeat, Interval: 60, Grace: 10, Threshold: 1, Monitor: true}}
	if err := s.UpsertCheckRule(ctx, c); err != nil {
		t.Fatalf("UpsertCheckRule: %v", err)
	}

	got, err := s.GetCheck(ctx, "p1:svc")
	if err != nil {
		t.Fatalf("GetCheck: %v", err)
	}
	got.Status = model.StatusError
	got.FailureCount = 3
	if err := s.UpdateCheckState(ctx, got, got.Version); err != nil {
		t.Fatalf("UpdateCheckState: %v", err)
	}

	// Re-register with a changed rule attribute; state must survive.
	c.Threshold = 5
	if err := s.UpsertCheckRule(ctx, c); err != nil {
		t.Fatalf("UpsertCheckRule (update): %v", err)
	}
	got, _ = s.GetCheck(ctx, "p1:svc")
	if got.Threshold != 5 {
		t.Fatalf("expected rule overwritten, got threshold=%d", got.Threshold)
	}
	if got.Status != model.StatusError || got.FailureCount != 3 {
		t.Fatalf("expected state attributes preserved, got %+v", got)
	}
}

func TestMemoryStoreUpdateCheckStateConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c := model.Check{CheckRule: model.CheckRule{ProjectID: "p1", Name: "svc", Type: model.CheckHeartbeat, Monitor: true}}
	if err := s.UpsertCheckRule(ctx, c); err != nil {
		t.Fatalf("UpsertCheckRule: %v", err)
	}
	got, _ := s.GetCheck(ctx, "p1:svc")

	if err := s.UpdateCheckState(ctx, got, got.Version); err != nil {
		t.Fatalf("first update: %v", err)
	}
	// Stale version must be rejected.
	if err := s.UpdateCheckState(ctx, got, got.Version); err == nil {
		t.Fatalf("expected conflict on stale version")
	}
}

func TestMemoryStoreOverdueHeartbeatsExcludesEventChecksAndSelfHealth(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	heartbeat := model.Check{CheckRule: model.CheckRule{ProjectID: "p1", Name: "hb", Type: model.CheckHeartbeat, Interval: 60, Grace: 10, Monitor: true}}
	event := model.Check{CheckRule: model.CheckRule{ProjectID: "p1", Name: "ev", Type: model.CheckEvent, Monitor: true}}
	unmonitored := model.Check{CheckRule: model.CheckRule{ProjectID: "p1", Name: "off", Type: model.CheckHeartbeat, Interval: 60, Grace: 10, Monitor: false}}
	self := model.Check{CheckRule: model.CheckRule{ProjectID: "watch-dog", Name: "self-health", Type: model.CheckHeartbeat, Interval: 60, Grace: 10, Monitor: true}}

	for _, c := range []model.Check{heartbeat, event, unmonitored, self} {
		if err := s.UpsertCheckRule(ctx, c); err != nil {
			t.Fatalf("UpsertCheckRule: %v", err)
		}
	}

	overdue, err := s.ListOverdueHeartbeats(ctx, 1000)
	if err != nil {
		t.Fatalf("ListOverdueHeartbeats: %v", err)
	}
	if len(overdue) != 1 || overdue[0].Name != "hb" {
		t.Fatalf("expected only the heartbeat check, got %+v", overdue)
	}
}

func TestMemoryStoreNotOverdueAtExactBoundary(t *testing.T) {
	// P10: last_seen + interval + grace == now is not yet overdue.
	ctx := context.Background()
	s := NewMemoryStore()
	c := model.Check{CheckRule: model.CheckRule{ProjectID: "p1", Name: "hb", Type: model.CheckHeartbeat, Interval: 60, Grace: 10, Monitor: true}}
	if err := s.UpsertCheckRule(ctx, c); err != nil {
		t.Fatalf("UpsertCheckRule: %v", err)
	}
	overdue, err := s.ListOverdueHeartbeats(ctx, 70)
	if err != nil {
		t.Fatalf("ListOverdueHeartbeats: %v", err)
	}
	if len(overdue) != 0 {
		t.Fatalf("expected no overdue checks at exact boundary, got %+v", overdue)
	}
	overdue, err = s.ListOverdueHeartbeats(ctx, 71)
	if err != nil {
		t.Fatalf("ListOverdueHeartbeats: %v", err)
	}
	if len(overdue) != 1 {
		t.Fatalf("expected overdue past the boundary, got %+v", overdue)
	}
}

func TestMemoryStorePruneLogs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.AppendLog(ctx, model.LogEntry{CheckID: "p1:svc", CreatedAt: 1}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	if err := s.AppendLog(ctx, model.LogEntry{CheckID: "p1:svc", CreatedAt: 1000}); err != nil {
		t.Fatalf("AppendLog: %v", err)
	}
	pruned, err := s.PruneLogs(ctx, 500)
	if err != nil {
		t.Fatalf("PruneLogs: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected 1 pruned log, got %d", pruned)
	}
	if len(s.LogsForCheck("p1:svc")) != 1 {
		t.Fatalf("expected 1 remaining log")
	}
}

func TestMemoryStoreSettingsDefaults(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	settings, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if settings.SilencePeriodSeconds != 3600 {
		t.Fatalf("expected default silence period, got %d", settings.SilencePeriodSeconds)
	}
}
