package secondary

import (
	"context"
	"io"
)

// ProcessSpawner defines the secondary port for starting child processes.
type ProcessSpawner interface {
	// Spawn starts a process with piped stdio.
	Spawn(ctx context.Context, spec ProcessSpec) (Process, error)
}

// ProcessSpec describes a process to start.
type ProcessSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string // appended to the current environment
}

// Process is a running child process. Stdout and Stderr must be read to
// EOF before Wait is called.
type Process interface {
	Pid() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait waits for the process to exit. A non-zero exit is reported
	// through the exit code, not the error; the code is -1 when the
	// process was terminated by a signal.
	Wait() (exitCode int, err error)

	// Kill terminates the process.
	Kill() error
}
