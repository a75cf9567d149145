package gateway

import (
	"encoding/json"

	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/deckhand-sh/deckhand/internal/status"
)

// Command is an inbound client frame.
type Command struct {
	Action      string `json:"action"`
	OperationID string `json:"operation_id,omitempty"`
	ContainerID string `json:"container_id,omitempty"`
	Tail        int    `json:"tail,omitempty"`
	Timestamps  bool   `json:"timestamps,omitempty"`
	Project     string `json:"project,omitempty"`
}

const (
	actionSubscribe     = "subscribe"
	actionUnsubscribe   = "unsubscribe"
	actionLogs          = "logs"
	actionContainerLogs = "container_logs"
	actionStop          = "stop"
	actionStatus        = "status"
)

const (
	frameConnected = "connected"
	frameLogs      = "logs"
	frameComplete  = "complete"
	frameError     = "error"
	frameOperation = "operation"
	frameStatus    = "status"
)

// Frame is an outbound server frame.
type Frame struct {
	Type         string                `json:"type"`
	ConnectionID string                `json:"connection_id,omitempty"`
	Data         string                `json:"data,omitempty"`
	Message      string                `json:"message,omitempty"`
	Operation    *ops.Progress         `json:"operation,omitempty"`
	Status       *status.ProjectStatus `json:"status,omitempty"`
}

func encodeFrame(frame Frame) []byte {
	encoded, err := json.Marshal(frame)
	if err != nil {
		return []byte(`{"type":"error","message":"encode failure"}`)
	}
	return encoded
}
