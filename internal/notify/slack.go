package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

type SlackNotifier struct {
	logger     zerolog.Logger
	webhookURL string
	timing     timingConfig
	poster     *httpPoster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.rateInterval = rateInterval
		s.timing.rateBurst = rateBurst
		s.timing.backoffInitial = backoffInitial
		s.timing.backoffMax = backoffMax
		s.timing.backoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the
// webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) Notifier {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled")
	}

	notifier := &SlackNotifier{
		logger:     logger,
		webhookURL: webhookURL,
		timing:     defaultTiming,
	}

	for _, opt := range opts {
		opt(notifier)
	}

	notifier.poster = newHTTPPoster(logger, "slack", webhookURL, "application/json", notifier.timing)

	return notifier
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if err := n.poster.waitForRateLimit(ctx, event.Project()); err != nil {
		return err
	}

	message := buildSlackMessage(event)
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}
	if err := n.poster.postWithRetry(ctx, payload); err != nil {
		return err
	}

	n.logger.Debug().
		Str("project", event.Project()).
		Str("operation_id", event.Operation.ID).
		Str("status", string(event.Operation.Status)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessage(event Event) slack.WebhookMessage {
	op := event.Operation
	summary := fmt.Sprintf("Project %s: %s %s", event.Project(), op.Type, op.Status)

	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", summary, false, false))
	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Project: *%s*", event.Project()), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Operation: `%s`", op.ID), false, false),
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	title := fmt.Sprintf("*%s* finished as `%s`", op.Type, statusLabel(op.Status))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)

	fields := make([]*slack.TextBlockObject, 0, 3)
	if op.InitiatedBy != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Initiated by:*\n"+op.InitiatedBy, false, false))
	}
	if duration := event.Duration(); duration > 0 {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Duration:*\n"+duration.Round(time.Second).String(), false, false))
	}
	if op.ErrorMessage != "" {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn", "*Error:*\n"+truncate(op.ErrorMessage, 512), false, false))
	}

	blocks := []slack.Block{header, contextBlock, slack.NewSectionBlock(text, fields, nil)}
	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   summary,
		Blocks: &blockSet,
	}
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return strings.TrimSpace(text[:limit]) + "…"
}

func statusLabel(status ops.OperationStatus) string {
	if status == "" {
		return "unknown"
	}
	return string(status)
}
