package notify

import (
	"context"
	"time"

	"github.com/deckhand-sh/deckhand/internal/ops"
)

// Event describes a finished operation worth telling someone about.
type Event struct {
	Operation ops.Operation
}

// Project returns the event's project name, defaulting for operations
// created without one.
func (e Event) Project() string {
	if e.Operation.ProjectName == "" {
		return "default"
	}
	return e.Operation.ProjectName
}

// Duration returns how long the operation ran.
func (e Event) Duration() time.Duration {
	if e.Operation.CompletedAt == nil {
		return 0
	}
	return e.Operation.CompletedAt.Sub(e.Operation.StartedAt)
}

// Notifier delivers operation outcome alerts to external systems.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
