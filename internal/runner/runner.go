// Package runner drives deckhand's periodic housekeeping: Docker liveness
// pings, terminal operation eviction, and activity gauge refreshes.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/deckhand-sh/deckhand/internal/healthcheck"
	"github.com/deckhand-sh/deckhand/internal/metrics"
	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/deckhand-sh/deckhand/internal/stream"
	"github.com/rs/zerolog"
)

// Ticker is the minimal interface needed for driving the runner loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Pinger checks Docker daemon reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Runner orchestrates the housekeeping loop.
type Runner struct {
	logger          zerolog.Logger
	interval        time.Duration
	tickerFactory   func(time.Duration) Ticker
	runOnce         func(context.Context) error
	now             func() time.Time
	registry        *ops.Registry
	evictionHorizon time.Duration
	evictionEvery   time.Duration
	lastEviction    time.Time
	pinger          Pinger
	tracker         *healthcheck.Tracker
	metrics         *metrics.Metrics
	streams         *stream.Coordinator
	connections     func() int
}

// Option customizes runner behavior.
type Option func(*Runner)

// WithClock overrides the time source used for eviction pacing.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithTickerFactory overrides how tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(r *Runner) {
		r.tickerFactory = factory
	}
}

// WithRunOnce overrides the single-cycle execution step.
func WithRunOnce(runOnce func(context.Context) error) Option {
	return func(r *Runner) {
		r.runOnce = runOnce
	}
}

// WithRegistry enables terminal operation eviction. Eviction runs at most
// once per every; zero means every cycle.
func WithRegistry(registry *ops.Registry, horizon, every time.Duration) Option {
	return func(r *Runner) {
		r.registry = registry
		r.evictionHorizon = horizon
		r.evictionEvery = every
	}
}

// WithPinger enables Docker liveness checks.
func WithPinger(pinger Pinger) Option {
	return func(r *Runner) {
		r.pinger = pinger
	}
}

// WithTracker wires health reporting.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(r *Runner) {
		r.tracker = tracker
	}
}

// WithMetrics wires gauge refreshes.
func WithMetrics(collector *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = collector
	}
}

// WithStreams reports active stream sessions.
func WithStreams(streams *stream.Coordinator) Option {
	return func(r *Runner) {
		r.streams = streams
	}
}

// WithConnectionCount reports open gateway connections.
func WithConnectionCount(count func() int) Option {
	return func(r *Runner) {
		r.connections = count
	}
}

// New constructs a Runner with the given logger and cycle interval.
func New(logger zerolog.Logger, interval time.Duration, opts ...Option) *Runner {
	r := &Runner{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}
	r.runOnce = r.defaultRunOnce

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts the housekeeping loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	if r.interval <= 0 {
		return errors.New("interval must be greater than zero")
	}

	// Run immediately on startup
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error().Err(err).Msg("initial housekeeping cycle failed")
	}

	ticker := r.tickerFactory(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("runner stopped")
			return nil
		case <-ticker.C():
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("housekeeping cycle failed")
			}
		}
	}
}

// RunOnce executes a single cycle of the runner.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.runOnce(ctx)
}

func (r *Runner) defaultRunOnce(ctx context.Context) error {
	var cycleErr error

	if r.pinger != nil {
		started := time.Now()
		if err := r.pinger.Ping(ctx); err != nil {
			cycleErr = wrapRuntime("docker ping", err)
		} else {
			r.tracker.RecordPing(time.Since(started))
		}
	}

	if r.registry != nil && r.evictionHorizon > 0 {
		now := r.now()
		if r.lastEviction.IsZero() || now.Sub(r.lastEviction) >= r.evictionEvery {
			r.registry.EvictTerminal(r.evictionHorizon)
			r.lastEviction = now
		}
	}

	r.refreshGauges()

	return cycleErr
}

func (r *Runner) refreshGauges() {
	if r.registry == nil {
		return
	}

	active, _ := r.registry.Counts()
	r.metrics.SetOperationsActive(active)

	sessions := 0
	if r.streams != nil {
		sessions = r.streams.Active()
	}
	connections := 0
	if r.connections != nil {
		connections = r.connections()
	}
	r.tracker.RecordActivity(active, sessions, connections)
}
