// Package proc defines the contract for the external process runner that
// executes docker and compose commands on behalf of the core. Command
// execution itself lives outside this module; the core only consumes
// results and streamed output through these types.
package proc

import "context"

// Result captures the outcome of a one-shot command run.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Chunk is one unit of streamed command output.
type Chunk struct {
	Source string // "stdout" or "stderr"
	Text   string
	Err    error // non-nil when production failed mid-stream
}

// Runner executes a command and returns its collected output.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// Streamer executes a command and produces its output incrementally. The
// returned channel is lazy, finite, and not restartable; it is closed when
// the command exits or the context is cancelled.
type Streamer interface {
	Stream(ctx context.Context, args ...string) (<-chan Chunk, error)
}
