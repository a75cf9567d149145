package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/deckhand-sh/deckhand/internal/compose"
	"github.com/deckhand-sh/deckhand/internal/state"
	"github.com/rs/zerolog"
)

// UnknownProjectError indicates a project name that was never registered.
type UnknownProjectError struct {
	Project string
}

func (e *UnknownProjectError) Error() string {
	return fmt.Sprintf("unknown project %q", e.Project)
}

// Cache holds the declared shape of each managed project plus the most
// recent runtime report, and serves merged status snapshots.
type Cache struct {
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	declared   map[string][]string
	reported   map[string][]state.ServiceState
	reportedAt map[string]time.Time
}

// NewCache constructs an empty cache.
func NewCache(logger zerolog.Logger) *Cache {
	return &Cache{
		logger:     logger.With().Str("component", "status").Logger(),
		now:        time.Now,
		declared:   make(map[string][]string),
		reported:   make(map[string][]state.ServiceState),
		reportedAt: make(map[string]time.Time),
	}
}

// RegisterProject records a project's declared services.
func (c *Cache) RegisterProject(project compose.Project) {
	c.mu.Lock()
	c.declared[project.Name] = project.ServiceNames()
	c.mu.Unlock()

	c.logger.Info().
		Str("project", project.Name).
		Int("services", len(project.Services)).
		Msg("project registered")
}

// Report stores the latest runtime states for a project. Called from the
// process runner's asynchronous callback path.
func (c *Cache) Report(project string, services []state.ServiceState) {
	c.mu.Lock()
	c.reported[project] = append([]state.ServiceState(nil), services...)
	c.reportedAt[project] = c.now().UTC()
	c.mu.Unlock()
}

// Status returns the merged status for a registered project.
func (c *Cache) Status(project string) (ProjectStatus, error) {
	c.mu.RLock()
	declared, ok := c.declared[project]
	reported := c.reported[project]
	at := c.reportedAt[project]
	c.mu.RUnlock()

	if !ok {
		return ProjectStatus{}, &UnknownProjectError{Project: project}
	}
	if at.IsZero() {
		at = c.now().UTC()
	}
	return Evaluate(project, declared, reported, at), nil
}

// Projects returns the registered project names, for listings.
func (c *Cache) Projects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.declared))
	for name := range c.declared {
		names = append(names, name)
	}
	return names
}
