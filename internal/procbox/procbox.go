// Package procbox runs a single command under OS-level isolation.
//
// It is the execution primitive under the notebook engine and the ephemeral
// path of the container manager: one command in, one Result out, no session
// concept. Two implementations share identical semantics:
//
//   - BwrapRunner uses bubblewrap (bwrap) to give the command a minimal
//     filesystem view built from explicit bind mounts plus read-only system
//     paths, with network and PID namespace isolation as two independent
//     switches.
//   - LocalRunner is a plain subprocess fallback for hosts without bwrap,
//     intended for development only. It still applies the command guard.
//
// A timeout is always a data value: when the wall-clock bound expires the
// process is killed and Run returns a Result with TimedOut set, not an
// error. Non-zero exit codes likewise pass through uninterpreted.
package procbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Default limits applied when a Spec leaves them zero.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxOutput = 1024 * 1024 // per stream
)

// BindMount declares a host path visible inside the sandbox.
type BindMount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Spec describes one sandboxed invocation.
type Spec struct {
	// Command is the argv to execute. Required.
	Command []string

	// BindMounts are the host paths granted to the command, in addition
	// to the runner's read-only system paths.
	BindMounts []BindMount

	// Timeout is the hard wall-clock bound. Zero means DefaultTimeout.
	Timeout time.Duration

	// IsolateNetwork detaches the command from the host network
	// namespace. Independent of IsolatePID.
	IsolateNetwork bool

	// IsolatePID gives the command its own PID namespace.
	IsolatePID bool

	// Dir is the working directory inside the sandbox.
	Dir string

	// Env is the environment the command sees.
	Env map[string]string
}

// Result is the outcome of one invocation. Produced once per Run call.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runner executes one command under isolation.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// runCommand executes an already-built argv with the shared timeout and
// exit-code semantics. Both runners funnel through here so their behavior
// cannot drift. dir is the host working directory; the bwrap runner passes
// "" and uses --chdir instead, since its Spec.Dir names a sandbox path.
func runCommand(ctx context.Context, argv []string, spec Spec, env []string, dir string) (Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Dir = dir
	// Let Run return even when a grandchild keeps the output pipes open
	// after the kill.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &limitedWriter{w: &stdout, limit: DefaultMaxOutput}
	cmd.Stderr = &limitedWriter{w: &stderr, limit: DefaultMaxOutput}

	runErr := cmd.Run()

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		// Failing to spawn at all is an infrastructure problem, not a
		// command outcome.
		return result, runErr
	}

	return result, nil
}

// limitedWriter caps how much of a stream is retained. Excess bytes are
// discarded while still being reported as written, so the child never
// blocks on a full pipe.
type limitedWriter struct {
	w       *bytes.Buffer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	full := len(p)
	if lw.written >= lw.limit {
		return full, nil
	}
	if remaining := lw.limit - lw.written; len(p) > remaining {
		p = p[:remaining]
	}
	n, err := lw.w.Write(p)
	lw.written += n
	return full, err
}
