package notebook

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

// These tests run real Python through the harness, without isolation.
// They exercise the full restore/replay/execute/snapshot cycle.

func newPythonEngine(t *testing.T, policy SnapshotPolicy) (*Engine, sessionctx.Identity) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	store, err := NewStore(filepath.Join(t.TempDir(), "notebooks"))
	if err != nil {
		t.Fatal(err)
	}
	ws := workspace.NewManager(t.TempDir())
	eng := NewEngine(procbox.NewLocalRunner(), store, ws, nil, EngineConfig{Policy: policy})
	return eng, sessionctx.Identity{UserID: "alice", SessionID: "s1"}
}

func textOutput(c *Cell) string {
	var b strings.Builder
	for _, o := range c.Outputs {
		if o.Type == OutputText {
			b.WriteString(o.Content)
		}
	}
	return b.String()
}

func errorOutput(c *Cell) string {
	for _, o := range c.Outputs {
		if o.Type == OutputError {
			return o.Content
		}
	}
	return ""
}

func TestPythonStatePersistsAcrossCells(t *testing.T) {
	eng, id := newPythonEngine(t, PolicyDrop)
	ctx := context.Background()

	for _, code := range []string{"x = 1", "y = 2"} {
		cell, err := eng.AddCell(ctx, id, code, true, 0)
		if err != nil {
			t.Fatal(err)
		}
		if cell.State != StateCompleted {
			t.Fatalf("%q: state %v, outputs %+v", code, cell.State, cell.Outputs)
		}
	}

	cell, err := eng.AddCell(ctx, id, "print(x + y)", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(textOutput(cell)); got != "3" {
		t.Errorf("output = %q, want 3", got)
	}
}

func TestPythonBareExpressionEchoes(t *testing.T) {
	eng, id := newPythonEngine(t, PolicyDrop)
	ctx := context.Background()

	if _, err := eng.AddCell(ctx, id, "x = 21", true, 0); err != nil {
		t.Fatal(err)
	}
	cell, err := eng.AddCell(ctx, id, "x * 2", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(textOutput(cell)); got != "42" {
		t.Errorf("bare expression output = %q, want 42", got)
	}
}

func TestPythonErrorDoesNotPoisonState(t *testing.T) {
	eng, id := newPythonEngine(t, PolicyDrop)
	ctx := context.Background()

	if _, err := eng.AddCell(ctx, id, "x = 5", true, 0); err != nil {
		t.Fatal(err)
	}

	cell, err := eng.AddCell(ctx, id, "1 / 0", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cell.State != StateError {
		t.Fatalf("state = %v, want ERROR", cell.State)
	}
	if !strings.Contains(errorOutput(cell), "ZeroDivisionError") {
		t.Errorf("error output = %q", errorOutput(cell))
	}

	cell, err = eng.AddCell(ctx, id, "print(x)", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(textOutput(cell)); got != "5" {
		t.Errorf("x after failed cell = %q, want 5", got)
	}
}

func TestPythonDefinitionsReplay(t *testing.T) {
	eng, id := newPythonEngine(t, PolicyDrop)
	ctx := context.Background()

	if _, err := eng.AddCell(ctx, id, "import math\ndef area(r):\n    return math.pi * r * r\n", true, 0); err != nil {
		t.Fatal(err)
	}
	cell, err := eng.AddCell(ctx, id, "print(round(area(1), 2))", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(textOutput(cell)); got != "3.14" {
		t.Errorf("output = %q, want 3.14", got)
	}
}

func TestPythonDeleteCellDropsItsBindings(t *testing.T) {
	eng, id := newPythonEngine(t, PolicyDrop)
	ctx := context.Background()

	first, err := eng.AddCell(ctx, id, "x = 1", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.AddCell(ctx, id, "print(x)", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(textOutput(second)); got != "1" {
		t.Fatalf("output = %q, want 1", got)
	}

	if err := eng.DeleteCell(ctx, id, first.ID); err != nil {
		t.Fatal(err)
	}

	rerun, err := eng.RerunCell(ctx, id, second.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rerun.State != StateError {
		t.Fatalf("state = %v, want ERROR after defining cell deleted", rerun.State)
	}
	if !strings.Contains(errorOutput(rerun), "NameError") {
		t.Errorf("error output = %q, want NameError", errorOutput(rerun))
	}
}

func TestPythonSnapshotPolicies(t *testing.T) {
	// An open file handle can never be pickled.
	const code = "import tempfile\nf = tempfile.TemporaryFile()\nkept = 'still here'\n"

	t.Run("drop", func(t *testing.T) {
		eng, id := newPythonEngine(t, PolicyDrop)
		ctx := context.Background()
		if _, err := eng.AddCell(ctx, id, code, true, 0); err != nil {
			t.Fatal(err)
		}
		cell, err := eng.AddCell(ctx, id, "print(kept)\nprint('f' in dir())", true, 0)
		if err != nil {
			t.Fatal(err)
		}
		out := textOutput(cell)
		if !strings.Contains(out, "still here") || !strings.Contains(out, "False") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("marker", func(t *testing.T) {
		eng, id := newPythonEngine(t, PolicyMarker)
		ctx := context.Background()
		if _, err := eng.AddCell(ctx, id, code, true, 0); err != nil {
			t.Fatal(err)
		}
		cell, err := eng.AddCell(ctx, id, "print(f)", true, 0)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(textOutput(cell), "unserializable") {
			t.Errorf("output = %q, want placeholder", textOutput(cell))
		}
	})

	t.Run("fail", func(t *testing.T) {
		eng, id := newPythonEngine(t, PolicyFail)
		ctx := context.Background()
		cell, err := eng.AddCell(ctx, id, code, true, 0)
		if err != nil {
			t.Fatal(err)
		}
		if cell.State != StateError {
			t.Errorf("state = %v, want ERROR under fail policy", cell.State)
		}
	})
}

func TestPythonWorkspaceFilesVisible(t *testing.T) {
	eng, id := newPythonEngine(t, PolicyDrop)
	ctx := context.Background()

	if _, err := eng.AddCell(ctx, id, "with open('data.txt', 'w') as f:\n    f.write('hello')\n", true, 0); err != nil {
		t.Fatal(err)
	}
	cell, err := eng.AddCell(ctx, id, "print(open('data.txt').read())", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(textOutput(cell)); got != "hello" {
		t.Errorf("output = %q, want hello", got)
	}
}
