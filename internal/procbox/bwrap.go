package procbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
)

// defaultSystemPaths are mounted read-only into every bwrap sandbox so the
// command can find its interpreter and libraries. /proc is provided as a
// fresh procfs, never the host's: with PID isolation the host's process
// table (and /proc/<pid>/environ) must stay invisible.
var defaultSystemPaths = []string{
	"/usr",
	"/bin",
	"/sbin",
	"/lib",
	"/lib64",
	"/etc",
	"/opt",
}

// BwrapRunner executes commands under bubblewrap namespaces.
type BwrapRunner struct {
	// Path is the bwrap binary. Defaults to "bwrap" on PATH.
	Path string

	// SystemPaths overrides the read-only system mounts. Nil means
	// defaultSystemPaths; entries that do not exist on the host are
	// skipped.
	SystemPaths []string
}

// NewBwrapRunner returns a runner using bwrap from PATH.
func NewBwrapRunner() *BwrapRunner {
	return &BwrapRunner{Path: "bwrap"}
}

// Available reports whether the bwrap binary can be found.
func (r *BwrapRunner) Available() bool {
	path := r.Path
	if path == "" {
		path = "bwrap"
	}
	_, err := exec.LookPath(path)
	return err == nil
}

// Run executes the spec inside a bubblewrap sandbox.
func (r *BwrapRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if len(spec.Command) == 0 {
		return Result{}, fmt.Errorf("procbox: empty command")
	}

	argv, err := r.buildArgv(spec)
	if err != nil {
		return Result{}, err
	}

	// bwrap gets a clean host environment; the spec's env is injected
	// via --setenv inside the sandbox.
	return runCommand(ctx, argv, spec, []string{}, "")
}

// buildArgv assembles the bwrap command line for a spec.
func (r *BwrapRunner) buildArgv(spec Spec) ([]string, error) {
	path := r.Path
	if path == "" {
		path = "bwrap"
	}

	args := []string{path, "--die-with-parent", "--clearenv"}

	// Fresh /proc, minimal /dev, writable throwaway /tmp.
	args = append(args,
		"--proc", "/proc",
		"--dev", "/dev",
		"--tmpfs", "/tmp",
	)

	system := r.SystemPaths
	if system == nil {
		system = defaultSystemPaths
	}
	for _, p := range system {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		args = append(args, "--ro-bind", p, p)
	}

	for _, m := range spec.BindMounts {
		if m.Source == "" || m.Target == "" {
			return nil, fmt.Errorf("procbox: bind mount needs source and target, got %+v", m)
		}
		flag := "--bind"
		if m.ReadOnly {
			flag = "--ro-bind"
		}
		args = append(args, flag, m.Source, m.Target)
	}

	if spec.IsolatePID {
		args = append(args, "--unshare-pid")
	}
	if spec.IsolateNetwork {
		args = append(args, "--unshare-net")
	}

	if spec.Dir != "" {
		args = append(args, "--chdir", spec.Dir)
	}

	// Sorted for deterministic argv, which keeps failures reproducible.
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--setenv", k, spec.Env[k])
	}

	args = append(args, "--")
	args = append(args, spec.Command...)
	return args, nil
}
