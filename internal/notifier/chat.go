package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/watchdogsentinel/sentinel/internal/model"
)

// callTimeout bounds each outbound delivery attempt (spec.md §5: "≤5s").
const callTimeout = 5 * time.Second

// field is one label/value pair in the structured payload.
type field struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// payload is the structured message shape described in spec.md §4.4: a
// header, level/time fields, project/check fields, the message body,
// optional metadata fields, and a footer carrying check_id. Text is a
// short plain-text fallback for mobile previews.
type payload struct {
	Channel string  `json:"channel"`
	Header  string  `json:"header"`
	Text    string  `json:"text"`
	Fields  []field `json:"fields"`
	Footer  string  `json:"footer"`
}

var levelEmoji = map[model.Level]string{
	model.LevelCritical: "🔴",
	model.LevelWarning:  "🟠",
	model.LevelRecovery: "🟢",
	model.LevelInfo:     "ℹ️",
}

// ChatNotifier delivers alerts to a webhook-style chat API, grounded on
// matveynator-chicha-pulse's Telegram sender: a single shared *http.Client
// with a short timeout, a JSON body, and non-2xx treated as a delivery
// error the caller never sees.
type ChatNotifier struct {
	webhookURL string
	client     *http.Client
	logger     *log.Logger
	limiter    *rate.Limiter
}

// NewChatNotifier constructs a notifier posting to webhookURL. limit and
// burst configure the outbound rate limiter that protects the chat API
// from a wide alert storm across many projects (spec.md §4.4, §9).
func NewChatNotifier(webhookURL string, logger *log.Logger, limit rate.Limit, burst int) *ChatNotifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &ChatNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: callTimeout},
		logger:     logger,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Notify routes the alert to a channel key via settings, builds the
// structured payload, and posts it. Any failure — empty token, empty
// channel, rate-limited, network error, non-2xx response — is logged and
// swallowed (spec.md §4.4, §7).
func (n *ChatNotifier) Notify(ctx context.Context, alert model.Alert, settings model.Settings) error {
	if settings.APIToken == "" {
		n.logger.Printf("notifier: dropping alert for %s: no api token configured", alert.CheckID)
		return nil
	}
	channel := settings.ChannelFor(alert.Level)
	if channel == "" {
		n.logger.Printf("notifier: dropping alert for %s: no channel configured for level %s", alert.CheckID, alert.Level)
		return nil
	}
	if !n.limiter.Allow() {
		n.logger.Printf("notifier: dropping alert for %s: rate limited", alert.CheckID)
		return nil
	}

	body, err := json.Marshal(buildPayload(alert, channel))
	if err != nil {
		n.logger.Printf("notifier: encode alert for %s: %v", alert.CheckID, err)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		n.logger.Printf("notifier: build request for %s: %v", alert.CheckID, err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+settings.APIToken)

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Printf("notifier: deliver alert for %s: %v", alert.CheckID, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		n.logger.Printf("notifier: chat api returned %s for %s", resp.Status, alert.CheckID)
	}
	return nil
}

func buildPayload(alert model.Alert, channel string) payload {
	emoji := levelEmoji[alert.Level]
	fields := []field{
		{Title: "Level", Value: string(alert.Level)},
		{Title: "Time", Value: time.Unix(alert.Timestamp, 0).UTC().Format(time.RFC3339)},
		{Title: "Project", Value: alert.ProjectName},
		{Title: "Check", Value: alert.CheckName},
	}
	for _, key := range []string{"threshold", "interval", "grace", "failure_count"} {
		if v, ok := alert.Metadata[key]; ok {
			fields = append(fields, field{Title: key, Value: v})
		}
	}
	return payload{
		Channel: channel,
		Header:  fmt.Sprintf("%s %s", emoji, alert.Title),
		Text:    alert.Message,
		Fields:  fields,
		Footer:  fmt.Sprintf("check_id: %s", alert.CheckID),
	}
}
