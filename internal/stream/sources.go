package stream

import (
	"context"
	"errors"

	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/deckhand-sh/deckhand/internal/proc"
)

// ContainerLogReader fetches a bounded slice of container log lines.
type ContainerLogReader interface {
	ReadLogs(ctx context.Context, containerID string, tail int, timestamps bool) ([]string, error)
}

// OperationLog streams an operation's log: the accumulated buffer is
// replayed first, then appends are followed until the operation reaches a
// terminal status.
func OperationLog(registry *ops.Registry, operationID string) Source {
	return func(ctx context.Context, emit EmitFunc) error {
		snapshot, follower, err := registry.FollowLog(operationID)
		if err != nil {
			return err
		}
		defer follower.Close()

		if snapshot != "" {
			if err := emit(snapshot); err != nil {
				return err
			}
		}

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunk, open := <-follower.C():
				if !open {
					if follower.Lagged() {
						return errors.New("operation log feed lagged behind")
					}
					return nil
				}
				if err := emit(chunk); err != nil {
					return err
				}
			}
		}
	}
}

// ContainerLogs streams a one-shot tail of a container's logs and then
// terminates.
func ContainerLogs(reader ContainerLogReader, containerID string, tail int, timestamps bool) Source {
	return func(ctx context.Context, emit EmitFunc) error {
		lines, err := reader.ReadLogs(ctx, containerID, tail, timestamps)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := emit(line); err != nil {
				return err
			}
		}
		return nil
	}
}

// CommandOutput streams chunks produced by the process runner until the
// command exits.
func CommandOutput(runner proc.Streamer, args ...string) Source {
	return func(ctx context.Context, emit EmitFunc) error {
		chunks, err := runner.Stream(ctx, args...)
		if err != nil {
			return err
		}
		for chunk := range chunks {
			if chunk.Err != nil {
				return chunk.Err
			}
			if err := emit(chunk.Text); err != nil {
				return err
			}
		}
		return nil
	}
}
