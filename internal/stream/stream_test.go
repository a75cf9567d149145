package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingSink struct {
	mu        sync.Mutex
	chunks    []string
	completes int
	errors    []string
	terminal  chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{terminal: make(chan struct{}, 2)}
}

func (s *recordingSink) ReceiveLogs(chunk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *recordingSink) StreamComplete() {
	s.mu.Lock()
	s.completes++
	s.mu.Unlock()
	s.terminal <- struct{}{}
}

func (s *recordingSink) LogError(message string) {
	s.mu.Lock()
	s.errors = append(s.errors, message)
	s.mu.Unlock()
	s.terminal <- struct{}{}
}

func (s *recordingSink) terminalCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completes + len(s.errors)
}

func (s *recordingSink) received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.chunks...)
}

func waitTerminal(t *testing.T, s *recordingSink) {
	t.Helper()
	select {
	case <-s.terminal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func waitActiveZero(t *testing.T, c *Coordinator) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Active() == 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected zero active sessions, got %d", c.Active())
}

func staticSource(chunks ...string) Source {
	return func(ctx context.Context, emit EmitFunc) error {
		for _, chunk := range chunks {
			if err := emit(chunk); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestStart_ChunksThenSingleComplete(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	sink := newRecordingSink()

	c.Start("conn-1", sink, staticSource("one", "two", "three"))
	waitTerminal(t, sink)
	waitActiveZero(t, c)

	got := sink.received()
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("unexpected chunks: %v", got)
	}
	if sink.terminalCount() != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", sink.terminalCount())
	}
	if len(sink.errors) != 0 {
		t.Fatalf("unexpected error events: %v", sink.errors)
	}
}

func TestStart_SourceErrorBecomesSingleLogError(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	sink := newRecordingSink()

	c.Start("conn-1", sink, func(ctx context.Context, emit EmitFunc) error {
		if err := emit("partial"); err != nil {
			return err
		}
		return errors.New("runner exploded")
	})
	waitTerminal(t, sink)
	waitActiveZero(t, c)

	if sink.completes != 0 {
		t.Fatal("failed stream must not also complete")
	}
	if len(sink.errors) != 1 || sink.errors[0] != "runner exploded" {
		t.Fatalf("expected one LogError, got %v", sink.errors)
	}
}

func TestStart_SourcePanicIsContained(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	sink := newRecordingSink()

	c.Start("conn-1", sink, func(ctx context.Context, emit EmitFunc) error {
		panic("boom")
	})
	waitTerminal(t, sink)
	waitActiveZero(t, c)

	if len(sink.errors) != 1 {
		t.Fatalf("expected panic converted to one LogError, got %v", sink.errors)
	}
}

func TestStop_CancelledStreamEmitsNoTerminal(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	sink := newRecordingSink()
	started := make(chan struct{})
	release := make(chan struct{})

	c.Start("conn-1", sink, func(ctx context.Context, emit EmitFunc) error {
		close(started)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-release:
			return nil
		}
	})

	<-started
	c.Stop("conn-1")
	if c.Active() != 0 {
		t.Fatal("session should be removed synchronously on Stop")
	}
	c.Stop("conn-1") // idempotent

	select {
	case <-sink.terminal:
		t.Fatal("cancelled stream emitted a terminal event")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
}

func TestStart_ReplacesActiveSession(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())
	firstSink := newRecordingSink()
	secondSink := newRecordingSink()
	firstStarted := make(chan struct{})

	c.Start("conn-1", firstSink, func(ctx context.Context, emit EmitFunc) error {
		close(firstStarted)
		<-ctx.Done()
		return ctx.Err()
	})
	<-firstStarted

	c.Start("conn-1", secondSink, staticSource("fresh"))
	waitTerminal(t, secondSink)

	if secondSink.completes != 1 {
		t.Fatal("replacement session should complete independently")
	}
	if firstSink.terminalCount() != 0 {
		t.Fatal("replaced session must not emit a terminal event")
	}
	waitActiveZero(t, c)
}

func TestConcurrentStartStop_NoLeaksNoDuplicateTerminals(t *testing.T) {
	c := NewCoordinator(zerolog.Nop())

	const connections = 100
	sinks := make([]*recordingSink, connections)
	var wg sync.WaitGroup

	for i := 0; i < connections; i++ {
		sinks[i] = newRecordingSink()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			c.Start(id, sinks[i], func(ctx context.Context, emit EmitFunc) error {
				for j := 0; j < 5; j++ {
					if err := emit("chunk"); err != nil {
						return err
					}
				}
				return nil
			})
			if i%2 == 0 {
				c.Stop(id)
			} else {
				c.OnDisconnect(id)
			}
		}(i)
	}
	wg.Wait()
	waitActiveZero(t, c)

	for i, sink := range sinks {
		if count := sink.terminalCount(); count > 1 {
			t.Fatalf("connection %d observed %d terminal events", i, count)
		}
	}
}

type countingRecorder struct {
	started  atomic.Int64
	ended    atomic.Int64
	failures atomic.Int64
}

func (r *countingRecorder) SessionStarted()      { r.started.Add(1) }
func (r *countingRecorder) SessionEnded()        { r.ended.Add(1) }
func (r *countingRecorder) RecordStreamFailure() { r.failures.Add(1) }

func TestRecorder_ObservesLifecycle(t *testing.T) {
	recorder := &countingRecorder{}
	c := NewCoordinator(zerolog.Nop(), WithRecorder(recorder))

	ok := newRecordingSink()
	failed := newRecordingSink()
	c.Start("conn-ok", ok, staticSource("x"))
	c.Start("conn-bad", failed, func(ctx context.Context, emit EmitFunc) error {
		return errors.New("bad")
	})
	waitTerminal(t, ok)
	waitTerminal(t, failed)
	waitActiveZero(t, c)

	if recorder.started.Load() != 2 || recorder.ended.Load() != 2 {
		t.Fatalf("expected 2 started/ended, got %d/%d", recorder.started.Load(), recorder.ended.Load())
	}
	if recorder.failures.Load() != 1 {
		t.Fatalf("expected 1 failure, got %d", recorder.failures.Load())
	}
}
