// Package workspace manages the per-session host directories that are
// bind-mounted read-write into every sandbox invocation for that session.
// The workspace is the only state shared between the host and sandboxed
// code; it is deliberately separate from the notebook and sensitivity
// stores, which sandboxed code must never be able to reach.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pyxis-run/pyxis/internal/sessionctx"
)

// SandboxPath is where a session's workspace appears inside the sandbox.
const SandboxPath = "/workspace"

// Manager resolves and creates per-session workspace directories.
type Manager struct {
	root string
}

// NewManager creates a workspace manager rooted at the given host directory.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the host directory under which all workspaces live.
func (m *Manager) Root() string {
	return m.root
}

// Dir returns the host workspace directory for the identity, creating it
// if needed.
func (m *Manager) Dir(id sessionctx.Identity) (string, error) {
	if !id.Valid() {
		return "", fmt.Errorf("workspace: invalid session identity %q", id)
	}
	dir := filepath.Join(m.root, safeComponent(id.UserID), safeComponent(id.SessionID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return dir, nil
}

// HostPath translates an agent-visible sandbox path (under /workspace) into
// the real host path for the session. Paths that escape the workspace are
// rejected.
func (m *Manager) HostPath(id sessionctx.Identity, sandboxPath string) (string, error) {
	dir, err := m.Dir(id)
	if err != nil {
		return "", err
	}

	rel := strings.TrimPrefix(sandboxPath, SandboxPath)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return dir, nil
	}

	host := filepath.Join(dir, filepath.FromSlash(rel))
	if !strings.HasPrefix(host, dir+string(filepath.Separator)) && host != dir {
		return "", fmt.Errorf("workspace: path %q escapes the session workspace", sandboxPath)
	}
	return host, nil
}

// safeComponent strips characters that would let a session key traverse out
// of the workspace root.
func safeComponent(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "\\", "")
	if s == "" {
		s = "_"
	}
	return s
}
