// Package notifier delivers alert records to a chat-notification channel.
// Delivery is best-effort: a network failure or empty routing configuration
// is logged and dropped, never propagated to the caller (spec.md §4.4).
package notifier

import (
	"context"

	"github.com/watchdogsentinel/sentinel/internal/model"
)

// Notifier accepts a structured alert record and delivers it to whichever
// channel the level routes to.
type Notifier interface {
	Notify(ctx context.Context, alert model.Alert, settings model.Settings) error
}

// NopNotifier records nothing and always succeeds; it backs ingest and
// sweeper tests that don't assert on delivery.
type NopNotifier struct {
	Sent []model.Alert
}

// Notify appends the alert to Sent and returns nil.
func (n *NopNotifier) Notify(_ context.Context, alert model.Alert, _ model.Settings) error {
	n.Sent = append(n.Sent, alert)
	return nil
}
