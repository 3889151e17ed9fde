package event

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier posts a message for an event when Notify is called, if
// configured. Store.Record does not call it.
// Adapted from pkg/slack/notifier.go's IsEnabled/noop-when-unconfigured
// pattern, reduced to the one message shape this system needs.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates an event Notifier. If botToken is empty the notifier
// is a noop, matching spec's Non-goals on rich notification templating.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Enabled reports whether this notifier will actually post anything.
func (n *Notifier) Enabled() bool {
	return n.client != nil && n.channel != ""
}

// Notify posts a one-line message for e. Errors are returned to the caller,
// not retried.
func (n *Notifier) Notify(ctx context.Context, e Event) error {
	if !n.Enabled() {
		n.logger.Debug("event notifier disabled, skipping post", "customer_id", e.CustomerID, "monitor_id", e.MonitorID)
		return nil
	}

	text := fmt.Sprintf("[customer %d] monitor %d: %s — %s", e.CustomerID, e.MonitorID, e.Status, e.Message)
	_, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("event: posting notification: %w", err)
	}
	return nil
}
