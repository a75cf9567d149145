// Package broadcast fans operation status updates out to subscribed
// connections. It is transport-agnostic: connections attach a Sink and the
// owning transport adapter turns delivered payloads into wire messages.
package broadcast

import (
	"sync"

	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/rs/zerolog"
)

// Sink receives payloads for one connection. Deliver must not block; a
// returned error counts as a failed delivery for that connection only.
type Sink interface {
	Deliver(payload ops.Progress) error
}

// Recorder observes delivery outcomes, typically for metrics.
type Recorder interface {
	RecordDelivery(ok bool)
	SetSubscribers(count int)
}

// Broadcaster tracks which connections are subscribed to which operation
// ids and pushes transition payloads to them.
type Broadcaster struct {
	logger   zerolog.Logger
	recorder Recorder

	mu     sync.RWMutex
	sinks  map[string]Sink
	byOp   map[string]map[string]struct{}
	byConn map[string]map[string]struct{}
}

// Option customizes broadcaster behavior.
type Option func(*Broadcaster)

// WithRecorder wires delivery metrics.
func WithRecorder(recorder Recorder) Option {
	return func(b *Broadcaster) {
		b.recorder = recorder
	}
}

// New constructs an empty broadcaster.
func New(logger zerolog.Logger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		logger: logger.With().Str("component", "broadcast").Logger(),
		sinks:  make(map[string]Sink),
		byOp:   make(map[string]map[string]struct{}),
		byConn: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach registers a connection's sink. Attaching an id again replaces the
// previous sink but keeps its subscriptions.
func (b *Broadcaster) Attach(connectionID string, sink Sink) {
	b.mu.Lock()
	b.sinks[connectionID] = sink
	b.mu.Unlock()
}

// Subscribe adds a connection to an operation's subscriber set. Idempotent;
// a no-op for connections that never attached.
func (b *Broadcaster) Subscribe(connectionID, operationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sinks[connectionID]; !ok {
		return
	}
	if b.byOp[operationID] == nil {
		b.byOp[operationID] = make(map[string]struct{})
	}
	b.byOp[operationID][connectionID] = struct{}{}
	if b.byConn[connectionID] == nil {
		b.byConn[connectionID] = make(map[string]struct{})
	}
	b.byConn[connectionID][operationID] = struct{}{}

	b.recordSubscribersLocked()
}

// Unsubscribe removes a connection from an operation's subscriber set.
// Idempotent.
func (b *Broadcaster) Unsubscribe(connectionID, operationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeMembershipLocked(connectionID, operationID)
	b.recordSubscribersLocked()
}

// DropConnection removes the connection's sink and all of its
// subscriptions. Must be called by the transport on disconnect.
func (b *Broadcaster) DropConnection(connectionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for operationID := range b.byConn[connectionID] {
		b.removeMembershipLocked(connectionID, operationID)
	}
	delete(b.sinks, connectionID)
	b.recordSubscribersLocked()
}

// Publish delivers the payload to every connection subscribed to the
// operation id. Delivery is best-effort per connection: one failing sink
// never blocks or fails the others. Callers that need per-operation payload
// ordering must serialize Publish calls per operation id, which the
// operation registry's transition hook does.
func (b *Broadcaster) Publish(operationID string, payload ops.Progress) {
	b.mu.RLock()
	targets := make([]Sink, 0, len(b.byOp[operationID]))
	ids := make([]string, 0, len(b.byOp[operationID]))
	for connectionID := range b.byOp[operationID] {
		if sink, ok := b.sinks[connectionID]; ok {
			targets = append(targets, sink)
			ids = append(ids, connectionID)
		}
	}
	b.mu.RUnlock()

	for i, sink := range targets {
		err := sink.Deliver(payload)
		if b.recorder != nil {
			b.recorder.RecordDelivery(err == nil)
		}
		if err != nil {
			b.logger.Warn().
				Err(err).
				Str("connection_id", ids[i]).
				Str("operation_id", operationID).
				Msg("broadcast delivery failed")
		}
	}
}

// SubscriberCount returns the number of connections subscribed to the
// operation id.
func (b *Broadcaster) SubscriberCount(operationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byOp[operationID])
}

func (b *Broadcaster) removeMembershipLocked(connectionID, operationID string) {
	if subs := b.byOp[operationID]; subs != nil {
		delete(subs, connectionID)
		if len(subs) == 0 {
			delete(b.byOp, operationID)
		}
	}
	if subs := b.byConn[connectionID]; subs != nil {
		delete(subs, operationID)
		if len(subs) == 0 {
			delete(b.byConn, connectionID)
		}
	}
}

func (b *Broadcaster) recordSubscribersLocked() {
	if b.recorder == nil {
		return
	}
	total := 0
	for _, subs := range b.byOp {
		total += len(subs)
	}
	b.recorder.SetSubscribers(total)
}
