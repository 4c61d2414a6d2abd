// Package registry implements the Config Upserter: idempotent registration
// of a project and its check set, authenticated by the project's own token
// (spec.md §4.6).
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

// Defaults applied to a check whose fields are omitted (spec.md §6.2).
const (
	defaultInterval  int64 = 300
	defaultGrace     int64 = 60
	defaultThreshold       = 1
	defaultCooldown  int64 = 900
)

// CheckInput is the wire-level shape of one entry in a register call's
// checks array, before interval/grace/threshold/cooldown defaults are
// applied (spec.md §6.2).
type CheckInput struct {
	Name        string
	DisplayName string
	Type        model.CheckType
	Interval    *int64
	Grace       *int64
	Threshold   *int
	Cooldown    *int64
}

// Registrar implements Register, grounded on the Config Upserter's
// validate-then-upsert shape (spec.md §4.6).
type Registrar struct {
	store store.Store
}

// New constructs a Registrar over the given Store.
func New(st store.Store) *Registrar {
	return &Registrar{store: st}
}

// Register validates the request, upserts the project (preserving
// maintenance_until/created_at), and upserts each check's rule attributes,
// leaving state attributes untouched for existing rows and defaulting them
// for new ones. It is idempotent: repeated calls with identical inputs
// yield identical row state (spec.md §4.6, P6).
func (r *Registrar) Register(ctx context.Context, token, projectID, displayName string, checks []CheckInput) (model.Project, []model.Check, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return model.Project{}, nil, fmt.Errorf("%w: project_id is required", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(token) == "" {
		return model.Project{}, nil, model.ErrUnauthorized
	}
	if len(checks) == 0 {
		return model.Project{}, nil, fmt.Errorf("%w: at least one check is required", model.ErrInvalidRequest)
	}
	for _, c := range checks {
		if strings.TrimSpace(c.Name) == "" {
			return model.Project{}, nil, fmt.Errorf("%w: check name is required", model.ErrInvalidRequest)
		}
		if c.Type != model.CheckHeartbeat && c.Type != model.CheckEvent {
			return model.Project{}, nil, fmt.Errorf("%w: check %q has invalid type %q", model.ErrInvalidRequest, c.Name, c.Type)
		}
	}

	existing, err := r.store.GetProject(ctx, projectID)
	switch {
	case err == nil:
		if existing.Token != token {
			return model.Project{}, nil, model.ErrForbidden
		}
	case errors.Is(err, model.ErrNotFound):
		// New project; nothing to authenticate against yet.
	default:
		return model.Project{}, nil, err
	}

	project := model.Project{ID: projectID, Token: token, DisplayName: displayName}
	if err := r.store.UpsertProject(ctx, project); err != nil {
		return model.Project{}, nil, fmt.Errorf("upsert project: %w", err)
	}
	project, err = r.store.GetProject(ctx, projectID)
	if err != nil {
		return model.Project{}, nil, fmt.Errorf("reload project: %w", err)
	}

	registered := make([]model.Check, 0, len(checks))
	for _, in := range checks {
		rule := model.CheckRule{
			ProjectID:   projectID,
			Name:        in.Name,
			DisplayName: in.DisplayName,
			Type:        in.Type,
			Interval:    withDefaultInt64(in.Interval, defaultInterval),
			Grace:       withDefaultInt64(in.Grace, defaultGrace),
			Threshold:   withDefaultInt(in.Threshold, defaultThreshold),
			Cooldown:    withDefaultInt64(in.Cooldown, defaultCooldown),
			Monitor:     true,
		}
		if err := r.store.UpsertCheckRule(ctx, model.Check{CheckRule: rule}); err != nil {
			return model.Project{}, nil, fmt.Errorf("upsert check %q: %w", in.Name, err)
		}
		check, err := r.store.GetCheck(ctx, model.CheckKey(projectID, in.Name))
		if err != nil {
			return model.Project{}, nil, fmt.Errorf("reload check %q: %w", in.Name, err)
		}
		registered = append(registered, check)
	}

	return project, registered, nil
}

func withDefaultInt64(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

func withDefaultInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}
