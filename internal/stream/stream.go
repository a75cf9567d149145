// Package stream binds one cancellable unit of log production to one
// connection. Each session emits ordered chunks to its sink followed by
// exactly one terminal event, unless the session is cancelled first.
package stream

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Sink receives a session's output events. ReceiveLogs may return an error
// to abort production; StreamComplete and LogError are terminal and are
// called at most once per session, never both.
type Sink interface {
	ReceiveLogs(chunk string) error
	StreamComplete()
	LogError(message string)
}

// EmitFunc pushes one chunk toward the sink. It fails once the session is
// cancelled or the sink rejects the chunk.
type EmitFunc func(chunk string) error

// Source produces a session's output. It must call emit for every chunk,
// honor ctx cancellation at each natural checkpoint, and return nil on
// graceful exhaustion.
type Source func(ctx context.Context, emit EmitFunc) error

// Recorder observes session lifecycle, typically for metrics.
type Recorder interface {
	SessionStarted()
	SessionEnded()
	RecordStreamFailure()
}

// Coordinator owns at most one active session per connection id.
type Coordinator struct {
	logger   zerolog.Logger
	recorder Recorder

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	connectionID string
	cancel       context.CancelFunc
	done         chan struct{}
}

// Option customizes coordinator behavior.
type Option func(*Coordinator)

// WithRecorder wires session metrics.
func WithRecorder(recorder Recorder) Option {
	return func(c *Coordinator) {
		c.recorder = recorder
	}
}

// NewCoordinator constructs a coordinator with no active sessions.
func NewCoordinator(logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:   logger.With().Str("component", "stream").Logger(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a stream for the connection. An active session for the same
// connection is cancelled and removed first: last writer wins per
// connection, and the replaced session emits no terminal event.
func (c *Coordinator) Start(connectionID string, sink Sink, source Source) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		connectionID: connectionID,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	c.mu.Lock()
	if prev, ok := c.sessions[connectionID]; ok {
		prev.cancel()
	}
	c.sessions[connectionID] = sess
	c.mu.Unlock()

	go c.run(ctx, sess, sink, source)
}

// Stop cancels and removes the connection's active session. Idempotent;
// the session is gone from the coordinator's view before Stop returns, so
// a subsequent Start cannot race a half-removed predecessor.
func (c *Coordinator) Stop(connectionID string) {
	c.mu.Lock()
	if sess, ok := c.sessions[connectionID]; ok {
		sess.cancel()
		delete(c.sessions, connectionID)
	}
	c.mu.Unlock()
}

// OnDisconnect releases the connection's session. The transport layer must
// call it whenever a connection drops, including after stream errors.
func (c *Coordinator) OnDisconnect(connectionID string) {
	c.Stop(connectionID)
}

// Active returns the number of live sessions.
func (c *Coordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

func (c *Coordinator) run(ctx context.Context, sess *session, sink Sink, source Source) {
	defer close(sess.done)
	defer c.remove(sess)

	if c.recorder != nil {
		c.recorder.SessionStarted()
		defer c.recorder.SessionEnded()
	}

	emit := func(chunk string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return sink.ReceiveLogs(chunk)
	}

	err := runSource(ctx, source, emit)

	// Cancellation is an expected outcome of Stop or disconnect, not a
	// fault: the session ends without a terminal event.
	if ctx.Err() != nil {
		c.logger.Debug().Str("connection_id", sess.connectionID).Msg("stream cancelled")
		return
	}

	if err != nil {
		if c.recorder != nil {
			c.recorder.RecordStreamFailure()
		}
		c.logger.Warn().Err(err).Str("connection_id", sess.connectionID).Msg("stream failed")
		sink.LogError(err.Error())
		return
	}

	sink.StreamComplete()
}

// runSource confines any failure, including panics in source code paths,
// to the session boundary.
func runSource(ctx context.Context, source Source, emit EmitFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream source panic: %v", r)
		}
	}()
	return source(ctx, emit)
}

// remove clears the session from the map unless a newer session already
// replaced it.
func (c *Coordinator) remove(sess *session) {
	c.mu.Lock()
	if current, ok := c.sessions[sess.connectionID]; ok && current == sess {
		delete(c.sessions, sess.connectionID)
	}
	c.mu.Unlock()
}
