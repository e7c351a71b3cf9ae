package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Container.Image != "python:3.12-alpine" {
		t.Errorf("default image = %q", cfg.Container.Image)
	}
	if cfg.Container.MemoryMB != 256 {
		t.Errorf("default memory = %d, want 256", cfg.Container.MemoryMB)
	}
	if cfg.Container.User != "nobody" {
		t.Errorf("default user = %q, want nobody", cfg.Container.User)
	}
	if cfg.Process.Timeout != 30 {
		t.Errorf("default process timeout = %d, want 30", cfg.Process.Timeout)
	}
	if !cfg.Process.AllowLocalFallback {
		t.Error("local fallback should be allowed by default")
	}
	if cfg.Notebook.Python != "python3" {
		t.Errorf("default python = %q", cfg.Notebook.Python)
	}
	if cfg.Notebook.SnapshotPolicy != "drop" {
		t.Errorf("default snapshot policy = %q, want drop", cfg.Notebook.SnapshotPolicy)
	}
}

func TestWorkspaceRoot(t *testing.T) {
	cfg := DefaultConfig()

	root := cfg.WorkspaceRoot()
	if root == "" || root == "~/.pyxis/workspace" {
		t.Errorf("WorkspaceRoot() = %q, want expanded path", root)
	}

	cfg.Workspace.Root = ""
	if cfg.WorkspaceRoot() == "" {
		t.Error("WorkspaceRoot() should use default when empty")
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ProcessTimeout() != 30*time.Second {
		t.Errorf("ProcessTimeout = %v", cfg.ProcessTimeout())
	}
	if cfg.CellTimeout() != 60*time.Second {
		t.Errorf("CellTimeout = %v", cfg.CellTimeout())
	}

	cfg.Process.Timeout = 0
	cfg.Notebook.CellTimeout = -1
	if cfg.ProcessTimeout() <= 0 || cfg.CellTimeout() <= 0 {
		t.Error("zero config values must fall back to defaults")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Container.Image != DefaultConfig().Container.Image {
		t.Error("missing file should yield defaults")
	}
}

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"container": {"image": "python:3.11"}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Container.Image != "python:3.11" {
		t.Errorf("image = %q, want override", cfg.Container.Image)
	}
	if cfg.Notebook.Python != "python3" {
		t.Error("untouched sections should keep defaults")
	}
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed config accepted")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	cfg := DefaultConfig()
	cfg.Container.MemoryMB = 512
	cfg.Notebook.SnapshotPolicy = "marker"

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Fatal("Exists = false after save")
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Container.MemoryMB != 512 || got.Notebook.SnapshotPolicy != "marker" {
		t.Errorf("reload lost values: %+v", got)
	}
}

func TestExpandPath(t *testing.T) {
	if got := expandPath(""); got != "" {
		t.Errorf("expandPath('') = %q, want empty", got)
	}

	result := expandPath("~/test")
	if result == "~/test" || result == "" {
		t.Errorf("expandPath('~/test') = %q, want expansion", result)
	}

	if got := expandPath("~"); got == "~" {
		t.Error("expandPath('~') should expand to home dir")
	}

	if got := expandPath("/tmp/test"); got != "/tmp/test" {
		t.Errorf("expandPath('/tmp/test') = %q", got)
	}
}
