package ops

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransitionHook observes every status transition. Hooks run synchronously
// while the operation is locked, so per-operation payload order matches
// transition order; implementations must be fast and non-blocking.
type TransitionHook func(Progress)

// TransitionUpdate carries the optional fields of a transition.
type TransitionUpdate struct {
	Progress     *int
	ErrorMessage string
	Log          string
}

// Registry is the single source of truth for operation lifecycle.
//
// The id→entry map is guarded by a read-write lock; each entry carries its
// own mutex so transitions on different operations never serialize against
// each other.
type Registry struct {
	logger zerolog.Logger
	now    func() time.Time
	hooks  []TransitionHook

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu           sync.Mutex
	op           Operation
	log          strings.Builder
	followers    map[int]*LogFollower
	nextFollower int
}

// Option customizes registry behavior.
type Option func(*Registry)

// WithClock overrides the time source, primarily for testing.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithTransitionHook registers a hook invoked on every transition.
func WithTransitionHook(hook TransitionHook) Option {
	return func(r *Registry) {
		r.hooks = append(r.hooks, hook)
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger:  logger.With().Str("component", "ops").Logger(),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create allocates a new pending operation.
func (r *Registry) Create(opType OperationType, opts CreateOptions) (Operation, error) {
	if _, err := ParseType(string(opType)); err != nil {
		return Operation{}, err
	}

	op := Operation{
		ID:          uuid.NewString(),
		Type:        opType,
		Status:      StatusPending,
		Progress:    0,
		ProjectName: opts.ProjectName,
		ProjectPath: opts.ProjectPath,
		InitiatedBy: opts.InitiatedBy,
		StartedAt:   r.now().UTC(),
	}

	r.mu.Lock()
	r.entries[op.ID] = &entry{op: op, followers: make(map[int]*LogFollower)}
	r.mu.Unlock()

	r.logger.Info().
		Str("operation_id", op.ID).
		Str("type", string(op.Type)).
		Str("project", op.ProjectName).
		Str("initiated_by", op.InitiatedBy).
		Msg("operation created")

	return op, nil
}

// Transition moves an operation to a new status. Entering a terminal status
// records the completion time and ends any log followers. Every successful
// transition notifies the registered hooks.
func (r *Registry) Transition(id string, newStatus OperationStatus, update TransitionUpdate) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !transitionAllowed(e.op.Status, newStatus) {
		return &InvalidTransitionError{ID: id, From: e.op.Status, To: newStatus}
	}

	// Append before the status flips: a chunk riding a terminal transition
	// must still reach live followers before the feed closes.
	if update.Log != "" {
		e.appendLogLocked(update.Log)
	}

	e.op.Status = newStatus
	if update.Progress != nil {
		e.op.Progress = clampProgress(*update.Progress)
	}
	if update.ErrorMessage != "" {
		e.op.ErrorMessage = update.ErrorMessage
	}

	if newStatus.Terminal() {
		completed := r.now().UTC()
		e.op.CompletedAt = &completed
		if e.op.Progress < 100 && newStatus == StatusCompleted {
			e.op.Progress = 100
		}
		e.closeFollowersLocked()
	}

	r.logger.Info().
		Str("operation_id", id).
		Str("status", string(newStatus)).
		Int("progress", e.op.Progress).
		Msg("operation transitioned")

	payload := Progress{
		OperationID: id,
		Status:      newStatus,
		Progress:    e.op.Progress,
		Logs:        update.Log,
	}
	for _, hook := range r.hooks {
		hook(payload)
	}

	return nil
}

// AppendLog appends text to the operation's log buffer. Appending to a
// terminal operation succeeds and is retained: a draining process may
// deliver output after the operation has ended.
func (r *Registry) AppendLog(id, text string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.appendLogLocked(text)
	return nil
}

// Get returns the full detail for an operation.
func (r *Registry) Get(id string) (Detail, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Detail{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return Detail{Operation: e.op, Log: e.log.String()}, nil
}

// List returns operation summaries matching the filter, newest first.
// An empty result is not an error.
func (r *Registry) List(filter Filter) []Operation {
	r.mu.RLock()
	result := make([]Operation, 0, len(r.entries))
	for _, e := range r.entries {
		e.mu.Lock()
		op := e.op
		e.mu.Unlock()
		if filterMatches(filter, op) {
			result = append(result, op)
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}

// EvictTerminal removes terminal operations completed before the horizon
// and returns the number evicted. The write lock keeps eviction from
// racing in-flight Get/List calls.
func (r *Registry) EvictTerminal(horizon time.Duration) int {
	cutoff := r.now().UTC().Add(-horizon)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, e := range r.entries {
		e.mu.Lock()
		expired := e.op.Status.Terminal() && e.op.CompletedAt != nil && e.op.CompletedAt.Before(cutoff)
		e.mu.Unlock()
		if expired {
			delete(r.entries, id)
			evicted++
		}
	}

	if evicted > 0 {
		r.logger.Info().Int("evicted", evicted).Msg("evicted terminal operations")
	}
	return evicted
}

// Counts returns the number of active (non-terminal) and total operations.
func (r *Registry) Counts() (active, total int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		e.mu.Lock()
		if !e.op.Status.Terminal() {
			active++
		}
		e.mu.Unlock()
	}
	return active, len(r.entries)
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return e, nil
}

func (e *entry) appendLogLocked(text string) {
	e.log.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		e.log.WriteString("\n")
	}
	if e.op.Status.Terminal() {
		return
	}
	for id, follower := range e.followers {
		select {
		case follower.ch <- text:
		default:
			follower.lagged.Store(true)
			follower.closeChannel()
			delete(e.followers, id)
		}
	}
}

func (e *entry) closeFollowersLocked() {
	for id, follower := range e.followers {
		follower.closeChannel()
		delete(e.followers, id)
	}
}

func clampProgress(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func filterMatches(filter Filter, op Operation) bool {
	if filter.Status != "" && op.Status != filter.Status {
		return false
	}
	if filter.InitiatedBy != "" && op.InitiatedBy != filter.InitiatedBy {
		return false
	}
	if !filter.Since.IsZero() && op.StartedAt.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && op.StartedAt.After(filter.Until) {
		return false
	}
	return true
}
