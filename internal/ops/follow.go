package ops

import (
	"sync"
	"sync/atomic"
)

const followerBuffer = 256

// LogFollower is a live subscription to an operation's log feed. The
// channel closes when the operation reaches a terminal status, when the
// follower falls too far behind, or when Close is called.
type LogFollower struct {
	ch     chan string
	lagged atomic.Bool
	once   sync.Once
	detach func()
}

// C returns the channel of appended log chunks.
func (f *LogFollower) C() <-chan string {
	return f.ch
}

// Lagged reports whether the follower was dropped for falling behind.
func (f *LogFollower) Lagged() bool {
	return f.lagged.Load()
}

// Close detaches the follower from the registry. Safe to call more than
// once and safe to call after the registry has already closed the feed.
func (f *LogFollower) Close() {
	if f.detach != nil {
		f.detach()
	}
	f.closeChannel()
}

func (f *LogFollower) closeChannel() {
	f.once.Do(func() {
		close(f.ch)
	})
}

// FollowLog returns the log accumulated so far plus a follower for
// subsequent appends. Following a terminal operation returns the full log
// and an already-closed follower.
func (r *Registry) FollowLog(id string) (string, *LogFollower, error) {
	e, err := r.lookup(id)
	if err != nil {
		return "", nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.log.String()

	follower := &LogFollower{ch: make(chan string, followerBuffer)}
	if e.op.Status.Terminal() {
		follower.closeChannel()
		return snapshot, follower, nil
	}

	followerID := e.nextFollower
	e.nextFollower++
	follower.detach = func() {
		e.mu.Lock()
		delete(e.followers, followerID)
		e.mu.Unlock()
	}
	e.followers[followerID] = follower

	return snapshot, follower, nil
}
