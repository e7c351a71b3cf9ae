package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the root configuration structure for pyxis.
type Config struct {
	Workspace WorkspaceConfig `json:"workspace"`
	Process   ProcessConfig   `json:"process"`
	Container ContainerConfig `json:"container"`
	Notebook  NotebookConfig  `json:"notebook"`
}

// WorkspaceConfig locates the per-session directories and the engine's
// own state.
type WorkspaceConfig struct {
	// Root holds one directory per (user, session) pair, mounted into
	// every sandbox at /workspace.
	Root string `json:"root"`
	// DataDir holds notebook documents and sensitivity state. Never
	// mounted into a sandbox.
	DataDir string `json:"dataDir"`
}

// ProcessConfig tunes the process-level sandbox.
type ProcessConfig struct {
	// BwrapPath overrides the bubblewrap binary location.
	BwrapPath string `json:"bwrapPath,omitempty"`
	// Timeout is the default command bound in seconds.
	Timeout int `json:"timeout"`
	// AllowLocalFallback permits unisolated execution when no sandbox
	// backend is available.
	AllowLocalFallback bool `json:"allowLocalFallback"`
}

// ContainerConfig tunes the container sandbox.
type ContainerConfig struct {
	Image       string  `json:"image"`
	MemoryMB    int64   `json:"memoryMb"`
	CPUPercent  float64 `json:"cpuPercent"`
	PidsLimit   int64   `json:"pidsLimit"`
	User        string  `json:"user"`
	ExecTimeout int     `json:"execTimeout"` // seconds
	// ReadOnlyMounts maps host paths to container paths mounted
	// read-only, for shared reference data.
	ReadOnlyMounts map[string]string `json:"readOnlyMounts,omitempty"`
}

// NotebookConfig tunes the stateful execution engine.
type NotebookConfig struct {
	Python      string `json:"python"`
	CellTimeout int    `json:"cellTimeout"` // seconds
	// SnapshotPolicy handles non-serializable namespace values:
	// "drop", "marker", or "fail".
	SnapshotPolicy string `json:"snapshotPolicy"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Root:    "~/.pyxis/workspace",
			DataDir: "~/.pyxis/data",
		},
		Process: ProcessConfig{
			Timeout:            30,
			AllowLocalFallback: true,
		},
		Container: ContainerConfig{
			Image:       "python:3.12-alpine",
			MemoryMB:    256,
			CPUPercent:  0.5,
			PidsLimit:   64,
			User:        "nobody",
			ExecTimeout: 60,
		},
		Notebook: NotebookConfig{
			Python:         "python3",
			CellTimeout:    60,
			SnapshotPolicy: "drop",
		},
	}
}

// WorkspaceRoot returns the absolute workspace root, expanding ~.
func (c *Config) WorkspaceRoot() string {
	root := c.Workspace.Root
	if root == "" {
		root = "~/.pyxis/workspace"
	}
	return expandPath(root)
}

// DataPath returns the absolute data directory, expanding ~.
func (c *Config) DataPath() string {
	dir := c.Workspace.DataDir
	if dir == "" {
		dir = "~/.pyxis/data"
	}
	return expandPath(dir)
}

// ProcessTimeout returns the process sandbox bound as a duration.
func (c *Config) ProcessTimeout() time.Duration {
	if c.Process.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Process.Timeout) * time.Second
}

// CellTimeout returns the notebook cell bound as a duration.
func (c *Config) CellTimeout() time.Duration {
	if c.Notebook.CellTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Notebook.CellTimeout) * time.Second
}

// expandPath expands ~ to the user's home directory and resolves the path.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == filepath.Separator {
			path = filepath.Join(home, path[2:])
		} else {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
