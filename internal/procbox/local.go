package procbox

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// LocalRunner executes commands as plain subprocesses with no isolation.
// Bind mounts and the isolation flags are ignored; timeout semantics are
// identical to BwrapRunner. Development fallback only — the command guard
// is its single line of defense, which is exactly why it screens commands
// the namespace runner does not have to.
type LocalRunner struct{}

// NewLocalRunner returns the no-isolation fallback runner.
func NewLocalRunner() *LocalRunner {
	return &LocalRunner{}
}

// Run executes the spec's command directly on the host.
func (r *LocalRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Command) == 0 {
		return Result{}, fmt.Errorf("procbox: empty command")
	}

	if reason := GuardCommand(strings.Join(spec.Command, " ")); reason != "" {
		return Result{}, ErrBlockedCommand{Command: spec.Command[0], Reason: reason}
	}

	// Without isolation there is no mount table; when the working
	// directory names a bind-mount target, run from its source so
	// callers can address the sandbox path with either runner.
	dir := spec.Dir
	for _, m := range spec.BindMounts {
		if m.Target == spec.Dir {
			dir = m.Source
			break
		}
	}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return Result{}, fmt.Errorf("procbox: working directory: %w", err)
		}
	}

	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	return runCommand(ctx, spec.Command, spec, env, dir)
}

var _ Runner = (*LocalRunner)(nil)
var _ Runner = (*BwrapRunner)(nil)
