package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deckhand-sh/deckhand/internal/healthcheck"
	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/rs/zerolog"
)

type fakeTicker struct {
	ch      chan time.Time
	stopped bool
	mu      sync.Mutex
}

func (t *fakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *fakeTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type fakePinger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.err
}

func (p *fakePinger) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func waitForCalls(calls <-chan struct{}, want int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for i := 0; i < want; i++ {
		select {
		case <-calls:
		case <-deadline:
			return false
		}
	}
	return true
}

func TestRunner_Run_TriggersRunOnceOnTicks(t *testing.T) {
	ticker := &fakeTicker{ch: make(chan time.Time, 2)}
	runCalls := make(chan struct{}, 3)

	r := New(zerolog.Nop(), time.Second,
		WithTickerFactory(func(time.Duration) Ticker {
			return ticker
		}),
		WithRunOnce(func(context.Context) error {
			runCalls <- struct{}{}
			return nil
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		_ = r.Run(ctx)
		close(done)
	}()

	ticker.ch <- time.Now()
	ticker.ch <- time.Now()

	// one startup run plus two ticks
	if !waitForCalls(runCalls, 3, time.Second) {
		t.Fatalf("expected three run calls")
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runner did not stop after cancel")
	}

	if !ticker.Stopped() {
		t.Fatalf("expected ticker to be stopped")
	}
}

func TestRunner_Run_RejectsNonPositiveInterval(t *testing.T) {
	r := New(zerolog.Nop(), 0)
	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected interval error")
	}
}

func TestRunOnce_PingRecordsHealth(t *testing.T) {
	pinger := &fakePinger{}
	tracker := healthcheck.NewTracker()

	r := New(zerolog.Nop(), time.Second,
		WithPinger(pinger),
		WithTracker(tracker),
	)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if pinger.Calls() != 1 {
		t.Fatalf("expected one ping, got %d", pinger.Calls())
	}
	if !tracker.Ready() {
		t.Fatalf("expected tracker ready after successful ping")
	}
}

func TestRunOnce_PingFailureSurfacesRuntimeError(t *testing.T) {
	pinger := &fakePinger{err: errors.New("daemon unreachable")}
	tracker := healthcheck.NewTracker()

	r := New(zerolog.Nop(), time.Second,
		WithPinger(pinger),
		WithTracker(tracker),
	)

	err := r.RunOnce(context.Background())
	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if tracker.Ready() {
		t.Fatalf("failed ping must not mark tracker ready")
	}
}

func TestRunOnce_EvictsTerminalOperations(t *testing.T) {
	now := time.Now().UTC()
	clock := now.Add(-2 * time.Hour)
	registry := ops.NewRegistry(zerolog.Nop(), ops.WithClock(func() time.Time { return clock }))

	op, err := registry.Create(ops.TypeUp, ops.CreateOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := registry.Transition(op.ID, ops.StatusRunning, ops.TransitionUpdate{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := registry.Transition(op.ID, ops.StatusCompleted, ops.TransitionUpdate{}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	clock = now

	r := New(zerolog.Nop(), time.Second,
		WithRegistry(registry, time.Hour, 0),
		WithTracker(healthcheck.NewTracker()),
	)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	if _, err := registry.Get(op.ID); err == nil {
		t.Fatalf("expected operation to be evicted")
	}
}

func TestRunOnce_EvictionHonorsCadence(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	registry := ops.NewRegistry(zerolog.Nop(), ops.WithClock(func() time.Time { return clock }))

	op, err := registry.Create(ops.TypeDown, ops.CreateOptions{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := registry.Transition(op.ID, ops.StatusRunning, ops.TransitionUpdate{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := registry.Transition(op.ID, ops.StatusFailed, ops.TransitionUpdate{}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	r := New(zerolog.Nop(), time.Second,
		WithClock(func() time.Time { return clock }),
		WithRegistry(registry, time.Hour, 10*time.Minute),
		WithTracker(healthcheck.NewTracker()),
	)

	// first cycle evicts nothing: the operation is inside the horizon
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := registry.Get(op.ID); err != nil {
		t.Fatalf("operation evicted inside horizon: %v", err)
	}

	// horizon passes, but the cadence has not: still untouched
	clock = base.Add(2 * time.Hour)
	r.lastEviction = clock.Add(-time.Minute)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := registry.Get(op.ID); err != nil {
		t.Fatalf("eviction ran before its cadence elapsed: %v", err)
	}

	// cadence elapses: eviction runs
	clock = clock.Add(10 * time.Minute)
	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if _, err := registry.Get(op.ID); err == nil {
		t.Fatal("expected operation evicted once cadence elapsed")
	}
}

func TestRunOnce_RefreshesActivityGauges(t *testing.T) {
	registry := ops.NewRegistry(zerolog.Nop())
	if _, err := registry.Create(ops.TypeUp, ops.CreateOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tracker := healthcheck.NewTracker()

	r := New(zerolog.Nop(), time.Second,
		WithRegistry(registry, time.Hour, 0),
		WithTracker(tracker),
		WithConnectionCount(func() int { return 4 }),
	)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}

	snapshot := tracker.Snapshot()
	if snapshot.ActiveOperations != 1 {
		t.Fatalf("expected one active operation, got %d", snapshot.ActiveOperations)
	}
	if snapshot.Connections != 4 {
		t.Fatalf("expected four connections, got %d", snapshot.Connections)
	}
}
