package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// DryRunNotifier logs operation outcomes without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info().
		Str("project", event.Project()).
		Str("operation_id", event.Operation.ID).
		Str("type", string(event.Operation.Type)).
		Str("status", string(event.Operation.Status)).
		Str("error", event.Operation.ErrorMessage).
		Msg("[DRY-RUN] Would notify")
	return nil
}
