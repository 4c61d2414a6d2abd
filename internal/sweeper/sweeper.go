// Package sweeper implements the tick-driven scan that synthesizes "dead"
// events for overdue heartbeats, self-pulses the sweeper's own health
// check, and prunes old logs (spec.md §4.3).
package sweeper

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/watchdogsentinel/sentinel/internal/clock"
	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/notifier"
	"github.com/watchdogsentinel/sentinel/internal/settings"
	"github.com/watchdogsentinel/sentinel/internal/statemachine"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

// logRetentionSeconds is the 7-day pruning window from spec.md §3.
const logRetentionSeconds = 7 * 24 * 60 * 60

// selfHealthProjectID and selfHealthCheckName make up store.SelfHealthCheckID.
const (
	selfHealthProjectID = "watch-dog"
	selfHealthCheckName = "self-health"
)

// Sweeper drives the periodic overdue scan, self-pulse, and log pruning.
type Sweeper struct {
	store    store.Store
	settings *settings.Provider
	notifier notifier.Notifier
	clock    clock.Clock
	logger   *log.Logger
}

// New constructs a Sweeper with its collaborators.
func New(st store.Store, sp *settings.Provider, n notifier.Notifier, c clock.Clock, logger *log.Logger) *Sweeper {
	return &Sweeper{store: st, settings: sp, notifier: n, clock: c, logger: logger}
}

// Tick performs one sweep: self-pulse, then overdue scan and log pruning
// concurrently. A failing phase or check is logged and does not abort the
// tick (spec.md §4.3, §7).
func (sw *Sweeper) Tick(ctx context.Context, now int64) error {
	sw.selfPulse(ctx, now)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sw.scanOverdue(gctx, now)
		return nil
	})
	g.Go(func() error {
		sw.pruneLogs(gctx, now)
		return nil
	})
	return g.Wait()
}

// selfPulse unconditionally marks the well-known self-health check ok,
// bypassing the state machine entirely (spec.md §4.3 step 1, Open Question
// (c)): "tick ran" is the only signal this proves.
func (sw *Sweeper) selfPulse(ctx context.Context, now int64) {
	checkID := model.CheckKey(selfHealthProjectID, selfHealthCheckName)

	if _, err := sw.store.GetProject(ctx, selfHealthProjectID); err != nil {
		if err := sw.store.UpsertProject(ctx, model.Project{ID: selfHealthProjectID, DisplayName: "Watch-Dog Sentinel"}); err != nil {
			sw.logger.Printf("sweeper: self-pulse: create project: %v", err)
			return
		}
	}
	if _, err := sw.store.GetCheck(ctx, checkID); err != nil {
		rule := model.Check{CheckRule: model.CheckRule{
			ProjectID: selfHealthProjectID, Name: selfHealthCheckName,
			Type: model.CheckHeartbeat, Interval: 60, Grace: 60, Threshold: 1, Monitor: true,
		}}
		if err := sw.store.UpsertCheckRule(ctx, rule); err != nil {
			sw.logger.Printf("sweeper: self-pulse: create check: %v", err)
			return
		}
	}

	check, err := sw.store.GetCheck(ctx, checkID)
	if err != nil {
		sw.logger.Printf("sweeper: self-pulse: get check: %v", err)
		return
	}
	check.Status = model.StatusOK
	check.LastSeen = now
	check.FailureCount = 0
	check.LastMessage = "tick"
	if err := sw.store.UpdateCheckState(ctx, check, check.Version); err != nil {
		sw.logger.Printf("sweeper: self-pulse: update check: %v", err)
		return
	}
	if err := sw.store.AppendLog(ctx, model.LogEntry{CheckID: checkID, Status: model.StatusOK, Message: "tick", CreatedAt: now}); err != nil {
		sw.logger.Printf("sweeper: self-pulse: append log: %v", err)
	}
}

// scanOverdue synthesizes a dead event for every overdue heartbeat, one at
// a time, with per-check isolation: a failing check is logged and the scan
// continues (spec.md §4.3 step 2).
func (sw *Sweeper) scanOverdue(ctx context.Context, now int64) {
	overdue, err := sw.store.ListOverdueHeartbeats(ctx, now)
	if err != nil {
		sw.logger.Printf("sweeper: list overdue heartbeats: %v", err)
		return
	}

	settingsSnapshot, err := sw.settings.Get(ctx)
	if err != nil {
		sw.logger.Printf("sweeper: load settings: %v", err)
		return
	}

	for _, check := range overdue {
		sw.processOverdue(ctx, check, now, settingsSnapshot)
	}
}

func (sw *Sweeper) processOverdue(ctx context.Context, check model.Check, now int64, settingsSnapshot model.Settings) {
	defer func() {
		if r := recover(); r != nil {
			sw.logger.Printf("sweeper: panic processing %s: %v", check.ID(), r)
		}
	}()

	project, err := sw.store.GetProject(ctx, check.ProjectID)
	if err != nil {
		sw.logger.Printf("sweeper: get project for %s: %v", check.ID(), err)
		return
	}

	elapsed := now - check.LastSeen
	event := model.Dead(elapsed)
	next, alert := statemachine.Transition(check, project, event, settingsSnapshot, now)

	if err := sw.store.UpdateCheckState(ctx, next, check.Version); err != nil {
		// A concurrent pulse or another sweep won the race; the next tick
		// or pulse will re-observe and re-evaluate. Not retried here:
		// retry is the ingest path's job (spec.md §5, §9).
		sw.logger.Printf("sweeper: update state for %s: %v", check.ID(), err)
		return
	}

	if err := sw.store.AppendLog(ctx, model.LogEntry{
		CheckID: check.ID(), Status: next.Status, Message: next.LastMessage, CreatedAt: now,
	}); err != nil {
		sw.logger.Printf("sweeper: append log for %s: %v", check.ID(), err)
	}

	if alert != nil {
		if err := sw.notifier.Notify(ctx, *alert, settingsSnapshot); err != nil {
			sw.logger.Printf("sweeper: notify for %s: %v", check.ID(), err)
		}
	}
}

// pruneLogs deletes log rows older than the 7-day retention window
// (spec.md §3, §4.3 step 3). Errors are logged and swallowed (spec.md §7).
func (sw *Sweeper) pruneLogs(ctx context.Context, now int64) {
	pruned, err := sw.store.PruneLogs(ctx, now-logRetentionSeconds)
	if err != nil {
		sw.logger.Printf("sweeper: prune logs: %v", err)
		return
	}
	if pruned > 0 {
		sw.logger.Printf("sweeper: pruned %d log rows older than 7 days", pruned)
	}
}
