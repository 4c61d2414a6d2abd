// Package ingest implements the Pulse Ingestor: it authenticates a pulse,
// resolves the target check, runs the state machine, commits the result,
// and hands any produced alert to the Notifier (spec.md §4.2).
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/watchdogsentinel/sentinel/internal/clock"
	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/notifier"
	"github.com/watchdogsentinel/sentinel/internal/settings"
	"github.com/watchdogsentinel/sentinel/internal/statemachine"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

// maxConflictRetries bounds the optimistic-concurrency retry loop required
// by spec.md §5/§9: retried at most twice, then dropped.
const maxConflictRetries = 2

// Ingestor implements the ingest contract described in spec.md §4.2.
type Ingestor struct {
	store    store.Store
	settings *settings.Provider
	notifier notifier.Notifier
	clock    clock.Clock
	logger   *log.Logger
}

// New constructs an Ingestor with its collaborators.
func New(st store.Store, sp *settings.Provider, n notifier.Notifier, c clock.Clock, logger *log.Logger) *Ingestor {
	return &Ingestor{store: st, settings: sp, notifier: n, clock: c, logger: logger}
}

// Ingest authenticates the request, resolves the check, runs the state
// machine, and commits the outcome. projectID may be nil, in which case the
// project is resolved uniquely by token (spec.md §4.2/§6.1).
func (ing *Ingestor) Ingest(ctx context.Context, token string, projectID *string, checkName, status, message string, latency int64) (model.Ack, error) {
	if strings.TrimSpace(checkName) == "" {
		return model.Ack{}, fmt.Errorf("%w: check_name is required", model.ErrInvalidRequest)
	}
	if status != "" && status != "ok" && status != "error" {
		return model.Ack{}, fmt.Errorf("%w: status must be ok or error", model.ErrInvalidRequest)
	}
	if strings.TrimSpace(token) == "" {
		return model.Ack{}, model.ErrUnauthorized
	}

	project, err := ing.authenticate(ctx, token, projectID)
	if err != nil {
		return model.Ack{}, err
	}

	checkID := model.CheckKey(project.ID, checkName)
	now := ing.clock.Now()
	settingsSnapshot, err := ing.settings.Get(ctx)
	if err != nil {
		return model.Ack{}, fmt.Errorf("load settings: %w", err)
	}

	event := eventFor(status, message, latency)

	var result model.Check
	for attempt := 0; ; attempt++ {
		check, err := ing.store.GetCheck(ctx, checkID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.Ack{}, fmt.Errorf("%w: check %q is not registered", model.ErrNotFound, checkID)
			}
			return model.Ack{}, err
		}

		next, alert := statemachine.Transition(check, project, event, settingsSnapshot, now)
		if err := ing.store.UpdateCheckState(ctx, next, check.Version); err != nil {
			if errors.Is(err, model.ErrConflict) && attempt < maxConflictRetries {
				continue
			}
			if errors.Is(err, model.ErrConflict) {
				// spec.md §7: conflict retried at most twice, then dropped;
				// the next pulse or sweep will re-observe and re-emit.
				ing.logger.Printf("ingest: dropping %s after %d conflicting writes", checkID, attempt+1)
				return model.Ack{}, fmt.Errorf("%w: too many concurrent writers for %q", model.ErrConflict, checkID)
			}
			return model.Ack{}, err
		}
		result = next

		logEntry := model.LogEntry{
			CheckID:   checkID,
			Status:    next.Status,
			Latency:   latency,
			Message:   message,
			CreatedAt: now,
		}
		if err := ing.store.AppendLog(ctx, logEntry); err != nil {
			ing.logger.Printf("ingest: append log for %s: %v", checkID, err)
		}

		if alert != nil {
			if err := ing.notifier.Notify(ctx, *alert, settingsSnapshot); err != nil {
				ing.logger.Printf("ingest: notify for %s: %v", checkID, err)
			}
		}
		break
	}

	return model.Ack{CheckID: checkID, Status: result.Status, Timestamp: now}, nil
}

func (ing *Ingestor) authenticate(ctx context.Context, token string, projectID *string) (model.Project, error) {
	if projectID == nil || strings.TrimSpace(*projectID) == "" {
		project, err := ing.store.FindProjectByToken(ctx, token)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.Project{}, model.ErrUnauthorized
			}
			return model.Project{}, err
		}
		return project, nil
	}

	project, err := ing.store.GetProject(ctx, *projectID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.Project{}, fmt.Errorf("%w: project %q is not registered", model.ErrNotFound, *projectID)
		}
		return model.Project{}, err
	}
	if project.Token != token {
		return model.Project{}, model.ErrForbidden
	}
	return project, nil
}

func eventFor(status, message string, latency int64) model.Event {
	if status == "error" {
		return model.PulseError(message, latency)
	}
	return model.PulseOK(message, latency)
}
