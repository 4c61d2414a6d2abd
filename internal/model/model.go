// Package model holds the domain vocabulary shared by the store,
// statemachine, ingest, sweeper, registry, and notifier packages: projects,
// checks, logs, settings, and the events/alerts that flow between them.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced across core operations (spec.md §7).
var (
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrConflict      = errors.New("conflict")
)

// CheckType distinguishes heartbeat checks (swept for overdue pulses) from
// event checks (only ever report failures).
type CheckType string

const (
	CheckHeartbeat CheckType = "heartbeat"
	CheckEvent     CheckType = "event"
)

// Status is a check's current alerting state.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
	StatusDead  Status = "dead"
)

// Level is an alert's severity/routing class.
type Level string

const (
	LevelCritical Level = "critical"
	LevelWarning  Level = "warning"
	LevelRecovery Level = "recovery"
	LevelInfo     Level = "info"
)

// Project is a tenant scope: a token-authenticated owner of checks.
type Project struct {
	ID                string
	Token             string
	DisplayName       string
	MaintenanceUntil  int64
	CreatedAt         int64
}

// InMaintenance reports whether alerts for this project are currently
// suppressed (spec.md §4.1: "in_maint = project.maintenance_until > now").
func (p Project) InMaintenance(now int64) bool {
	return p.MaintenanceUntil > now
}

// CheckRule holds the immutable-from-the-state-machine's-view attributes of
// a check, as set by the Config Upserter (spec.md §3).
type CheckRule struct {
	ProjectID   string
	Name        string
	DisplayName string
	Type        CheckType
	Interval    int64
	Grace       int64
	Threshold   int
	Cooldown    int64
	Monitor     bool
}

// Check is the full mutable row: rule attributes plus state attributes
// mutated solely by the state machine (spec.md §3).
type Check struct {
	CheckRule

	Status       Status
	LastSeen     int64
	FailureCount int
	LastAlertAt  int64
	LastMessage  string

	// Version is bumped on every state write and used as the optimistic
	// concurrency predicate required by spec.md §5.
	Version int64
}

// ID returns the canonical check key "{project_id}:{name}" (spec.md I5).
func (c Check) ID() string {
	return CheckKey(c.ProjectID, c.Name)
}

// EffectiveCooldown returns the check's own cooldown if set, else the
// settings-wide default silence period (spec.md §4.5).
func (c Check) EffectiveCooldown(s Settings) int64 {
	if c.Cooldown > 0 {
		return c.Cooldown
	}
	return s.SilencePeriodSeconds
}

// CheckKey builds the canonical, bijective check identifier (spec.md I5).
func CheckKey(projectID, name string) string {
	return fmt.Sprintf("%s:%s", projectID, name)
}

// SplitCheckKey reverses CheckKey, rejecting keys whose components are
// empty or that don't contain the separator.
func SplitCheckKey(key string) (projectID, name string, err error) {
	idx := strings.Index(key, ":")
	if idx <= 0 || idx == len(key)-1 {
		return "", "", fmt.Errorf("%w: malformed check key %q", ErrInvalidRequest, key)
	}
	projectID, name = key[:idx], key[idx+1:]
	if projectID == "" || name == "" {
		return "", "", fmt.Errorf("%w: malformed check key %q", ErrInvalidRequest, key)
	}
	return projectID, name, nil
}

// LogEntry is an append-only per-event record (spec.md §3).
type LogEntry struct {
	ID        string
	CheckID   string
	Status    Status
	Latency   int64
	Message   string
	CreatedAt int64
}

// Settings are the notification-wide defaults resolved by the Settings
// Provider (spec.md §4.5).
type Settings struct {
	APIToken             string
	ChannelCritical      string
	ChannelSuccess       string
	ChannelWarning       string
	ChannelInfo          string
	SilencePeriodSeconds int64
	UpdatedAt            int64
}

// DefaultSettings returns the documented zero-state defaults.
func DefaultSettings() Settings {
	return Settings{SilencePeriodSeconds: 3600}
}

// ChannelFor resolves the routing table in spec.md §4.4.
func (s Settings) ChannelFor(level Level) string {
	switch level {
	case LevelCritical, LevelWarning:
		return s.ChannelCritical
	case LevelRecovery:
		return s.ChannelSuccess
	case LevelInfo:
		return s.ChannelInfo
	default:
		return ""
	}
}

// EventKind tags the union of inputs the state machine accepts.
type EventKind string

const (
	EventPulseOK    EventKind = "pulse_ok"
	EventPulseError EventKind = "pulse_error"
	EventDead       EventKind = "dead"
)

// Event is the tagged union of pulse and sweeper-synthesized inputs to
// Transition (spec.md §4.1).
type Event struct {
	Kind    EventKind
	Message string
	Latency int64
	Elapsed int64 // only meaningful for EventDead
}

// PulseOK constructs a successful-pulse event.
func PulseOK(message string, latency int64) Event {
	return Event{Kind: EventPulseOK, Message: message, Latency: latency}
}

// PulseError constructs a client-reported-failure event.
func PulseError(message string, latency int64) Event {
	return Event{Kind: EventPulseError, Message: message, Latency: latency}
}

// Dead constructs a sweeper-synthesized overdue-heartbeat event.
func Dead(elapsed int64) Event {
	return Event{Kind: EventDead, Elapsed: elapsed}
}

// Alert is the record the state machine hands to the Notifier (spec.md §4.1).
type Alert struct {
	Level       Level
	Title       string
	Message     string
	ProjectName string
	CheckName   string
	CheckID     string
	Timestamp   int64
	Metadata    map[string]string
}

// Ack is the acknowledgement returned by a successful Ingest call (spec.md §4.2).
type Ack struct {
	CheckID string
	Status  Status
	Timestamp int64
}
