package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pyxis-run/pyxis/internal/container"
	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

// SandboxTool runs one shell command in the caller's container sandbox.
// Persistent mode reuses the session's container across calls; otherwise
// a fresh container is created and destroyed around the command.
type SandboxTool struct {
	BaseTool
	mgr *container.Manager
}

// NewSandboxTool creates the container execution tool.
func NewSandboxTool(mgr *container.Manager) *SandboxTool {
	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute inside the sandbox",
			},
			"persistent": map[string]interface{}{
				"type":        "boolean",
				"description": "Reuse the session's container across calls (default true)",
			},
		},
		"required": []string{"command"},
	}

	return &SandboxTool{
		BaseTool: NewBaseTool(
			"sandbox_execute",
			"Execute a shell command in an isolated container with the session workspace mounted at /workspace. Network access depends on the session's data sensitivity.",
			parameters,
		),
		mgr: mgr,
	}
}

// Execute runs the command and renders the result. A non-zero exit and a
// timeout are both reported in the output, not as errors; only
// infrastructure failures surface as errors.
func (t *SandboxTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}

	command, err := GetStringParam(params, "command")
	if err != nil {
		return "", fmt.Errorf("sandbox_execute: %w", err)
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("sandbox_execute: command cannot be empty")
	}
	persistent := GetBoolParamOr(params, "persistent", true)

	res, err := t.mgr.ExecuteCommand(ctx, id, []string{"sh", "-c", command}, persistent)
	if err != nil {
		var blocked procbox.ErrBlockedCommand
		if errors.As(err, &blocked) {
			return "", blocked
		}
		return "", err
	}
	return renderExec(res.Output, res.ExitCode, res.TimedOut), nil
}

// ProcessTool runs one command in a host process sandbox, without a
// container. It backs environments where no container engine is
// available.
type ProcessTool struct {
	BaseTool
	runner  procbox.Runner
	ws      *workspace.Manager
	timeout time.Duration
}

// NewProcessTool creates the process execution tool.
func NewProcessTool(runner procbox.Runner, ws *workspace.Manager, timeout time.Duration) *ProcessTool {
	if timeout <= 0 {
		timeout = procbox.DefaultTimeout
	}
	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Wall-clock bound for the command (optional)",
			},
		},
		"required": []string{"command"},
	}

	return &ProcessTool{
		BaseTool: NewBaseTool(
			"process_execute",
			"Execute a shell command in an isolated process with the session workspace mounted at /workspace.",
			parameters,
		),
		runner:  runner,
		ws:      ws,
		timeout: timeout,
	}
}

func (t *ProcessTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}

	command, err := GetStringParam(params, "command")
	if err != nil {
		return "", fmt.Errorf("process_execute: %w", err)
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return "", errors.New("process_execute: command cannot be empty")
	}

	timeout := t.timeout
	if secs := GetIntParamOr(params, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	hostDir, err := t.ws.Dir(id)
	if err != nil {
		return "", err
	}

	res, err := t.runner.Run(ctx, procbox.Spec{
		Command: []string{"sh", "-c", command},
		BindMounts: []procbox.BindMount{
			{Source: hostDir, Target: workspace.SandboxPath},
		},
		Timeout:        timeout,
		IsolateNetwork: true,
		IsolatePID:     true,
		Dir:            workspace.SandboxPath,
	})
	if err != nil {
		return "", err
	}
	out := res.Stdout
	if res.Stderr != "" {
		if out != "" {
			out += "\n"
		}
		out += res.Stderr
	}
	return renderExec(out, res.ExitCode, res.TimedOut), nil
}

func renderExec(output string, exitCode int, timedOut bool) string {
	if timedOut {
		if output == "" {
			return "(timed out)"
		}
		return output + "\n(timed out)"
	}
	if exitCode != 0 {
		return fmt.Sprintf("%s\n(exit code %d)", output, exitCode)
	}
	if output == "" {
		return "(no output)"
	}
	return output
}
