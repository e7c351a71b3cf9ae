// Package container manages session-scoped isolated environments on a
// container runtime, with a network posture driven by the sensitivity
// tracker.
package container

import (
	"time"

	"github.com/pyxis-run/pyxis/internal/sensitivity"
)

// Default configuration values.
const (
	DefaultImage       = "python:3.12-alpine"
	DefaultMemoryMB    = 256
	DefaultCPUPercent  = 0.5
	DefaultPidsLimit   = 64
	DefaultWorkingDir  = "/workspace"
	DefaultUser        = "nobody"
	DefaultExecTimeout = 60 * time.Second
)

// Config describes the isolated environment created for a session.
type Config struct {
	// Image is the container image to run.
	Image string

	// CPUPercent is the CPU limit as a fraction of one CPU (0.0-1.0].
	CPUPercent float64

	// MemoryMB is the memory limit in megabytes. Swap is pinned to the
	// same value so the limit is real.
	MemoryMB int64

	// PidsLimit caps the number of processes inside the environment.
	PidsLimit int64

	// WorkingDir is the working directory inside the environment.
	WorkingDir string

	// NetworkMode is the network posture the environment starts with.
	// For persistent sessions the manager overrides this from the
	// sensitivity tracker on every access.
	NetworkMode sensitivity.NetworkMode

	// ReadOnlyMounts maps host paths to in-sandbox paths for a fixed
	// library of deployer-authored scripts, enforced immutable at the
	// filesystem level. Distinct from the writable session workspace.
	ReadOnlyMounts map[string]string

	// User is the unprivileged user commands run as.
	User string

	// ExecTimeout is the wall-clock bound on each command.
	ExecTimeout time.Duration
}

// DefaultConfig returns a Config with hardened defaults.
func DefaultConfig() Config {
	return Config{
		Image:       DefaultImage,
		CPUPercent:  DefaultCPUPercent,
		MemoryMB:    DefaultMemoryMB,
		PidsLimit:   DefaultPidsLimit,
		WorkingDir:  DefaultWorkingDir,
		NetworkMode: sensitivity.NetworkFull,
		User:        DefaultUser,
		ExecTimeout: DefaultExecTimeout,
	}
}

// normalize fills zero fields with defaults.
func (c *Config) normalize() {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.CPUPercent <= 0 || c.CPUPercent > 1.0 {
		c.CPUPercent = DefaultCPUPercent
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = DefaultPidsLimit
	}
	if c.WorkingDir == "" {
		c.WorkingDir = DefaultWorkingDir
	}
	if c.NetworkMode == "" {
		c.NetworkMode = sensitivity.NetworkFull
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.ExecTimeout <= 0 {
		c.ExecTimeout = DefaultExecTimeout
	}
}
