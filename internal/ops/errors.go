package ops

import "fmt"

// NotFoundError indicates an unknown operation id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("operation %s not found", e.ID)
}

// InvalidArgumentError indicates a malformed operation type or filter.
type InvalidArgumentError struct {
	Field string
	Value string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// InvalidTransitionError indicates a state machine violation.
type InvalidTransitionError struct {
	ID   string
	From OperationStatus
	To   OperationStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("operation %s: cannot transition from %s to %s", e.ID, e.From, e.To)
}
