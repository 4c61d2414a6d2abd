// Package settings resolves notification credentials, channel mapping, and
// the default cooldown (spec.md §4.5). Settings rows are read-only from the
// core's perspective; they are mutated only by the admin collaborator, out
// of this package's scope, through Store.UpdateSettings directly.
package settings

import (
	"context"

	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

// Provider resolves the current Settings, filling in the documented
// defaults when the store has no row yet.
type Provider struct {
	store store.Store
}

// New constructs a Provider over the given store.
func New(s store.Store) *Provider {
	return &Provider{store: s}
}

// Get returns the current settings, defaulting SilencePeriodSeconds to 3600
// and leaving channel/token fields empty when nothing has been configured.
func (p *Provider) Get(ctx context.Context) (model.Settings, error) {
	s, err := p.store.GetSettings(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	if s.SilencePeriodSeconds <= 0 {
		s.SilencePeriodSeconds = model.DefaultSettings().SilencePeriodSeconds
	}
	return s, nil
}
