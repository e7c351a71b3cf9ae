package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/container"
	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sensitivity"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

var (
	execEphemeral bool
	execProcess   bool
	execTimeout   int
)

var execCmd = &cobra.Command{
	Use:   "exec [command...]",
	Short: "Run a command in the session sandbox",
	Long:  "Execute a shell command inside the session's container sandbox. With --process the command runs in a process sandbox on the host instead. The session workspace is mounted at /workspace; network access depends on the session's data sensitivity.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func init() {
	execCmd.Flags().BoolVar(&execEphemeral, "ephemeral", false, "use a throwaway container instead of the session container")
	execCmd.Flags().BoolVar(&execProcess, "process", false, "run in a process sandbox instead of a container")
	execCmd.Flags().IntVar(&execTimeout, "timeout", 0, "timeout in seconds (0 uses the configured default)")
}

func runExec(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}
	command := strings.Join(args, " ")
	ctx := context.Background()

	if execProcess {
		return execInProcess(ctx, rt, id, command)
	}

	mgr, err := container.NewManager(rt.tracker, rt.ws, containerConfig(rt))
	if err != nil {
		return err
	}
	res, err := mgr.ExecuteCommand(ctx, id, []string{"sh", "-c", command}, !execEphemeral)
	if err != nil {
		return err
	}
	printExecResult(res.Output, res.ExitCode, res.TimedOut)
	return nil
}

func execInProcess(ctx context.Context, rt *deps, id sessionctx.Identity, command string) error {
	hostDir, err := rt.ws.Dir(id)
	if err != nil {
		return err
	}

	timeout := rt.cfg.ProcessTimeout()
	if execTimeout > 0 {
		timeout = time.Duration(execTimeout) * time.Second
	}

	res, err := rt.runner.Run(ctx, procbox.Spec{
		Command: []string{"sh", "-c", command},
		BindMounts: []procbox.BindMount{
			{Source: hostDir, Target: workspace.SandboxPath},
		},
		Timeout:        timeout,
		IsolateNetwork: rt.tracker.RequiredNetworkMode(id.Key()) == sensitivity.NetworkNone,
		IsolatePID:     true,
		Dir:            workspace.SandboxPath,
	})
	if err != nil {
		return err
	}

	out := res.Stdout
	if res.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += res.Stderr
	}
	printExecResult(out, res.ExitCode, res.TimedOut)
	return nil
}

func containerConfig(rt *deps) container.Config {
	c := rt.cfg.Container
	cfg := container.Config{
		Image:          c.Image,
		CPUPercent:     c.CPUPercent,
		MemoryMB:       c.MemoryMB,
		PidsLimit:      c.PidsLimit,
		User:           c.User,
		ReadOnlyMounts: c.ReadOnlyMounts,
	}
	if c.ExecTimeout > 0 {
		cfg.ExecTimeout = time.Duration(c.ExecTimeout) * time.Second
	}
	if execTimeout > 0 {
		cfg.ExecTimeout = time.Duration(execTimeout) * time.Second
	}
	return cfg
}

func printExecResult(output string, exitCode int, timedOut bool) {
	if output != "" {
		fmt.Print(output)
		if !strings.HasSuffix(output, "\n") {
			fmt.Println()
		}
	}
	switch {
	case timedOut:
		fmt.Println("(timed out)")
	case exitCode != 0:
		fmt.Printf("(exit code %d)\n", exitCode)
	}
}
