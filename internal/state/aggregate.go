package state

import "strings"

// Aggregate derives a single EntityState from per-service raw states.
//
// Priority, first match wins:
//  1. no services → down
//  2. all running → running
//  3. some running → degraded
//  4. any restarting → restarting
//  5. any exited → exited
//  6. any created → created
//  7. otherwise → stopped
//
// A running count between zero and the total dominates because partial
// availability is more actionable than any single non-running sub-state;
// the remaining checks are ordered by operator urgency.
func Aggregate(services []ServiceState) EntityState {
	if len(services) == 0 {
		return StateDown
	}

	running := 0
	hasRestarting := false
	hasExited := false
	hasCreated := false

	for _, service := range services {
		switch strings.ToLower(strings.TrimSpace(service.RawState)) {
		case "running":
			running++
		case "restarting":
			hasRestarting = true
		case "exited":
			hasExited = true
		case "created":
			hasCreated = true
		}
	}

	switch {
	case running == len(services):
		return StateRunning
	case running > 0:
		return StateDegraded
	case hasRestarting:
		return StateRestarting
	case hasExited:
		return StateExited
	case hasCreated:
		return StateCreated
	default:
		return StateStopped
	}
}
