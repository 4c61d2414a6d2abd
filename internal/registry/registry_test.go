package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestRegisterAppliesDefaultsOnNewCheck(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)

	project, checks, err := reg.Register(context.Background(), "secret", "p1", "Proj", []CheckInput{
		{Name: "svc", Type: model.CheckHeartbeat},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if project.Token != "secret" || project.DisplayName != "Proj" {
		t.Fatalf("unexpected project: %+v", project)
	}
	if len(checks) != 1 {
		t.Fatalf("expected one registered check, got %d", len(checks))
	}
	c := checks[0]
	if c.Interval != 300 || c.Grace != 60 || c.Threshold != 1 || c.Cooldown != 900 {
		t.Fatalf("expected spec defaults, got %+v", c.CheckRule)
	}
	if c.Status != model.StatusOK || c.LastSeen != 0 || c.FailureCount != 0 {
		t.Fatalf("expected fresh state attributes, got %+v", c)
	}
}

func TestRegisterHonorsExplicitOverrides(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)

	_, checks, err := reg.Register(context.Background(), "secret", "p1", "Proj", []CheckInput{
		{Name: "svc", Type: model.CheckHeartbeat, Interval: int64Ptr(30), Grace: int64Ptr(5), Threshold: intPtr(3), Cooldown: int64Ptr(120)},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	c := checks[0]
	if c.Interval != 30 || c.Grace != 5 || c.Threshold != 3 || c.Cooldown != 120 {
		t.Fatalf("expected overridden values preserved, got %+v", c.CheckRule)
	}
}

func TestRegisterIsIdempotentAndPreservesState(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)
	ctx := context.Background()

	if _, _, err := reg.Register(ctx, "secret", "p1", "Proj", []CheckInput{{Name: "svc", Type: model.CheckHeartbeat}}); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	// Simulate activity: a pulse bumps state attributes out from under the rule.
	c, err := mem.GetCheck(ctx, "p1:svc")
	if err != nil {
		t.Fatalf("GetCheck: %v", err)
	}
	c.Status = model.StatusError
	c.FailureCount = 2
	c.LastSeen = 555
	if err := mem.UpdateCheckState(ctx, c, c.Version); err != nil {
		t.Fatalf("UpdateCheckState: %v", err)
	}

	_, checks, err := reg.Register(ctx, "secret", "p1", "Proj", []CheckInput{{Name: "svc", Type: model.CheckHeartbeat}})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	got := checks[0]
	if got.Status != model.StatusError || got.FailureCount != 2 || got.LastSeen != 555 {
		t.Fatalf("re-registering must not disturb state attributes, got %+v", got)
	}
	if got.Interval != 300 || got.Grace != 60 || got.Threshold != 1 || got.Cooldown != 900 {
		t.Fatalf("re-registering must reapply identical rule attributes, got %+v", got.CheckRule)
	}
}

func TestRegisterPreservesMaintenanceAndCreatedAt(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)
	ctx := context.Background()

	if _, _, err := reg.Register(ctx, "secret", "p1", "Proj", []CheckInput{{Name: "svc", Type: model.CheckHeartbeat}}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := mem.SetMaintenance(ctx, "p1", 9999); err != nil {
		t.Fatalf("SetMaintenance: %v", err)
	}

	project, _, err := reg.Register(ctx, "secret", "p1", "Proj Renamed", []CheckInput{{Name: "svc", Type: model.CheckHeartbeat}})
	if err != nil {
		t.Fatalf("second Register: %v", err)
	}
	if project.MaintenanceUntil != 9999 {
		t.Fatalf("expected maintenance_until preserved across re-registration, got %d", project.MaintenanceUntil)
	}
	if project.DisplayName != "Proj Renamed" {
		t.Fatalf("expected display_name to be updated, got %q", project.DisplayName)
	}
}

func TestRegisterRejectsTokenMismatchOnExistingProject(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)
	ctx := context.Background()

	if _, _, err := reg.Register(ctx, "secret", "p1", "Proj", []CheckInput{{Name: "svc", Type: model.CheckHeartbeat}}); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	_, _, err := reg.Register(ctx, "other-token", "p1", "Proj", []CheckInput{{Name: "svc", Type: model.CheckHeartbeat}})
	if !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("expected ErrForbidden on token mismatch, got %v", err)
	}
}

func TestRegisterRejectsInvalidCheckType(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)

	_, _, err := reg.Register(context.Background(), "secret", "p1", "Proj", []CheckInput{
		{Name: "svc", Type: model.CheckType("bogus")},
	})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for a bad check type, got %v", err)
	}
}

func TestRegisterRejectsMissingCheckName(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)

	_, _, err := reg.Register(context.Background(), "secret", "p1", "Proj", []CheckInput{
		{Name: "", Type: model.CheckHeartbeat},
	})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for an empty check name, got %v", err)
	}
}

func TestRegisterRejectsEmptyProjectID(t *testing.T) {
	mem := store.NewMemoryStore()
	reg := New(mem)

	_, _, err := reg.Register(context.Background(), "secret", "", "Proj", []CheckInput{
		{Name: "svc", Type: model.CheckHeartbeat},
	})
	if !errors.Is(err, model.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for an empty project_id, got %v", err)
	}
}
