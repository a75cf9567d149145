package ops

import "time"

// OperationType identifies the kind of long-running action being tracked.
type OperationType string

const (
	TypeUp      OperationType = "up"
	TypeDown    OperationType = "down"
	TypeBuild   OperationType = "build"
	TypePull    OperationType = "pull"
	TypeRestart OperationType = "restart"
	TypeStop    OperationType = "stop"
)

// ParseType validates a raw operation type string.
func ParseType(value string) (OperationType, error) {
	switch OperationType(value) {
	case TypeUp, TypeDown, TypeBuild, TypePull, TypeRestart, TypeStop:
		return OperationType(value), nil
	default:
		return "", &InvalidArgumentError{Field: "type", Value: value}
	}
}

// OperationStatus is the lifecycle status of an operation.
type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusRunning   OperationStatus = "running"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
	StatusCancelled OperationStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s OperationStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// validTransitions maps each status to the statuses reachable from it.
// A running operation may transition to running again to report progress.
var validTransitions = map[OperationStatus][]OperationStatus{
	StatusPending: {StatusRunning},
	StatusRunning: {StatusRunning, StatusCompleted, StatusFailed, StatusCancelled},
}

func transitionAllowed(from, to OperationStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Operation is the summary read model for a tracked operation.
type Operation struct {
	ID           string          `json:"id"`
	Type         OperationType   `json:"type"`
	Status       OperationStatus `json:"status"`
	Progress     int             `json:"progress"`
	ProjectName  string          `json:"project_name,omitempty"`
	ProjectPath  string          `json:"project_path,omitempty"`
	InitiatedBy  string          `json:"initiated_by,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// Detail is the full read model including the accumulated log buffer.
type Detail struct {
	Operation
	Log string `json:"log"`
}

// Progress is the payload pushed to subscribers on each transition.
type Progress struct {
	OperationID string          `json:"operation_id"`
	Status      OperationStatus `json:"status"`
	Progress    int             `json:"progress"`
	Logs        string          `json:"logs,omitempty"`
}

// CreateOptions carries the optional fields recorded at creation.
type CreateOptions struct {
	ProjectName string
	ProjectPath string
	InitiatedBy string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status      OperationStatus
	InitiatedBy string
	Since       time.Time
	Until       time.Time
	Limit       int
}
