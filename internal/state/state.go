package state

import "strings"

// EntityState is the aggregate health of a multi-service deployment.
type EntityState string

const (
	StateDown       EntityState = "down"
	StateRunning    EntityState = "running"
	StateDegraded   EntityState = "degraded"
	StateRestarting EntityState = "restarting"
	StateExited     EntityState = "exited"
	StateStopped    EntityState = "stopped"
	StateCreated    EntityState = "created"

	// StateUnknown marks an unparseable input string. Aggregation never
	// produces it; services never report it.
	StateUnknown EntityState = "Unknown"
)

// ServiceState is the raw per-service state as reported by the runtime.
type ServiceState struct {
	Name     string
	RawState string
}

// String returns the canonical string form of the state.
func (s EntityState) String() string {
	return string(s)
}

// Parse maps a state string to its EntityState, case-insensitively.
// Unrecognized values map to StateUnknown.
func Parse(value string) EntityState {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "down":
		return StateDown
	case "running":
		return StateRunning
	case "degraded":
		return StateDegraded
	case "restarting":
		return StateRestarting
	case "exited":
		return StateExited
	case "stopped":
		return StateStopped
	case "created":
		return StateCreated
	default:
		return StateUnknown
	}
}
