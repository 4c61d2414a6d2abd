// Package statemachine implements the pure transition function at the heart
// of Watch-Dog Sentinel: it converts a check row, its project, an incoming
// pulse or synthetic dead event, and the current settings into the next
// check row and an optional alert. It performs no I/O and never raises;
// every outcome is returned (spec.md §4.1).
package statemachine

import (
	"fmt"

	"github.com/watchdogsentinel/sentinel/internal/model"
)

// Transition computes the next check row and an optional alert for the
// given event. now is unix seconds, matching the rest of the system.
func Transition(check model.Check, project model.Project, event model.Event, settings model.Settings, now int64) (model.Check, *model.Alert) {
	switch event.Kind {
	case model.EventPulseOK:
		return onPulseOK(check, project, event, now)
	case model.EventPulseError:
		return onPulseError(check, project, event, settings, now)
	case model.EventDead:
		return onDead(check, project, event, settings, now)
	default:
		// Unknown event kinds are a programmer error upstream, not a user
		// error; leave the row untouched rather than guessing.
		return check, nil
	}
}

func onPulseOK(check model.Check, project model.Project, event model.Event, now int64) (model.Check, *model.Alert) {
	next := check
	var alert *model.Alert

	if check.Status != model.StatusOK && check.FailureCount >= check.Threshold {
		alert = &model.Alert{
			Level:       model.LevelRecovery,
			Title:       fmt.Sprintf("Recovered: %s", check.Name),
			Message:     event.Message,
			ProjectName: project.DisplayName,
			CheckName:   check.Name,
			CheckID:     check.ID(),
			Timestamp:   now,
			Metadata: map[string]string{
				"threshold":     fmt.Sprintf("%d", check.Threshold),
				"failure_count": fmt.Sprintf("%d", check.FailureCount),
			},
		}
		next.LastAlertAt = now
	}

	next.FailureCount = 0
	next.Status = model.StatusOK
	next.LastSeen = now
	next.LastMessage = event.Message
	return next, alert
}

func onPulseError(check model.Check, project model.Project, event model.Event, settings model.Settings, now int64) (model.Check, *model.Alert) {
	next := check
	next.FailureCount++
	next.Status = model.StatusError
	next.LastSeen = now
	next.LastMessage = event.Message

	var alert *model.Alert
	if shouldAlert(next, project, settings, now) {
		alert = &model.Alert{
			Level:       model.LevelWarning,
			Title:       fmt.Sprintf("Failing: %s", check.Name),
			Message:     event.Message,
			ProjectName: project.DisplayName,
			CheckName:   check.Name,
			CheckID:     check.ID(),
			Timestamp:   now,
			Metadata: map[string]string{
				"threshold":     fmt.Sprintf("%d", check.Threshold),
				"failure_count": fmt.Sprintf("%d", next.FailureCount),
			},
		}
		next.LastAlertAt = now
	}
	return next, alert
}

func onDead(check model.Check, project model.Project, event model.Event, settings model.Settings, now int64) (model.Check, *model.Alert) {
	next := check
	next.FailureCount++
	next.Status = model.StatusDead
	// last_seen is deliberately not advanced (spec.md I4).
	next.LastMessage = fmt.Sprintf("heartbeat missed; last seen %ds ago", event.Elapsed)

	var alert *model.Alert
	if shouldAlert(next, project, settings, now) {
		alert = &model.Alert{
			Level:       model.LevelCritical,
			Title:       fmt.Sprintf("Dead: %s", check.Name),
			Message:     next.LastMessage,
			ProjectName: project.DisplayName,
			CheckName:   check.Name,
			CheckID:     check.ID(),
			Timestamp:   now,
			Metadata: map[string]string{
				"threshold":     fmt.Sprintf("%d", check.Threshold),
				"failure_count": fmt.Sprintf("%d", next.FailureCount),
				"interval":      fmt.Sprintf("%d", check.Interval),
				"grace":         fmt.Sprintf("%d", check.Grace),
			},
		}
		next.LastAlertAt = now
	}
	return next, alert
}

// shouldAlert evaluates the shared non-recovery alert predicate from
// spec.md §4.1 steps 2 and 3: not in maintenance, threshold met (inclusive),
// and cooldown elapsed (inclusive, with last_alert_at=0 meaning "never").
func shouldAlert(next model.Check, project model.Project, settings model.Settings, now int64) bool {
	if project.InMaintenance(now) {
		return false
	}
	if next.FailureCount < next.Threshold {
		return false
	}
	if next.LastAlertAt == 0 {
		return true
	}
	cooldown := next.EffectiveCooldown(settings)
	return now-next.LastAlertAt >= cooldown
}
