// Package status derives the aggregate state of managed compose projects
// from the service states reported by the process runner, merged with the
// services each project declares.
package status

import (
	"sort"
	"time"

	"github.com/deckhand-sh/deckhand/internal/state"
)

// Service is the per-service slice of a project status.
type Service struct {
	Name     string `json:"name"`
	RawState string `json:"raw_state"`
	Declared bool   `json:"declared"`
}

// ProjectStatus summarizes one project.
type ProjectStatus struct {
	Project     string            `json:"project"`
	State       state.EntityState `json:"state"`
	Services    []Service         `json:"services"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
}

// Evaluate merges declared service names with runtime-reported states and
// computes the aggregate entity state. Declared services absent from the
// report are treated as down; reported services that were never declared
// are kept and flagged.
func Evaluate(project string, declared []string, reported []state.ServiceState, at time.Time) ProjectStatus {
	declaredSet := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		declaredSet[name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(reported))
	services := make([]Service, 0, len(declared)+len(reported))
	aggregateInput := make([]state.ServiceState, 0, len(declared)+len(reported))

	for _, report := range reported {
		_, isDeclared := declaredSet[report.Name]
		seen[report.Name] = struct{}{}
		services = append(services, Service{
			Name:     report.Name,
			RawState: report.RawState,
			Declared: isDeclared,
		})
		aggregateInput = append(aggregateInput, report)
	}

	for _, name := range declared {
		if _, ok := seen[name]; ok {
			continue
		}
		services = append(services, Service{
			Name:     name,
			RawState: state.StateDown.String(),
			Declared: true,
		})
		aggregateInput = append(aggregateInput, state.ServiceState{
			Name:     name,
			RawState: state.StateDown.String(),
		})
	}

	sort.Slice(services, func(i, j int) bool {
		return services[i].Name < services[j].Name
	})

	return ProjectStatus{
		Project:     project,
		State:       state.Aggregate(aggregateInput),
		Services:    services,
		EvaluatedAt: at,
	}
}
