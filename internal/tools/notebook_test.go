package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pyxis-run/pyxis/internal/notebook"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

func newNotebookCtx(t *testing.T) (context.Context, *notebook.Engine, *workspace.Manager) {
	t.Helper()
	store, err := notebook.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ws := workspace.NewManager(t.TempDir())
	eng := notebook.NewEngine(nil, store, ws, nil, notebook.EngineConfig{})
	ctx := sessionctx.With(context.Background(),
		sessionctx.Identity{UserID: "alice", SessionID: "s1"})
	return ctx, eng, ws
}

func TestNotebookExportWritesWorkspaceFile(t *testing.T) {
	ctx, eng, ws := newNotebookCtx(t)
	id := sessionctx.Identity{UserID: "alice", SessionID: "s1"}

	if _, err := eng.AddCell(ctx, id, "x = 1", false, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddCell(ctx, id, "print(x)", false, 0); err != nil {
		t.Fatal(err)
	}

	tool := NewNotebookExportTool(eng, ws)
	out, err := tool.Execute(ctx, map[string]interface{}{"path": "analysis.ipynb"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 cells") || !strings.Contains(out, "/workspace/analysis.ipynb") {
		t.Errorf("out = %q", out)
	}

	dir, err := ws.Dir(id)
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "analysis.ipynb"))
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		NBFormat int `json:"nbformat"`
		Cells    []struct {
			CellType string `json:"cell_type"`
		} `json:"cells"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.NBFormat != 4 || len(doc.Cells) != 2 {
		t.Errorf("nbformat = %d, cells = %d", doc.NBFormat, len(doc.Cells))
	}
}

func TestNotebookExportRejectsEscapingPath(t *testing.T) {
	ctx, eng, ws := newNotebookCtx(t)
	id := sessionctx.Identity{UserID: "alice", SessionID: "s1"}
	if _, err := eng.AddCell(ctx, id, "x = 1", false, 0); err != nil {
		t.Fatal(err)
	}

	tool := NewNotebookExportTool(eng, ws)
	if _, err := tool.Execute(ctx, map[string]interface{}{"path": "../outside.ipynb"}); err == nil {
		t.Error("path escaping the workspace accepted")
	}
}

func TestNotebookShowListsCells(t *testing.T) {
	ctx, eng, _ := newNotebookCtx(t)
	id := sessionctx.Identity{UserID: "alice", SessionID: "s1"}
	if _, err := eng.AddCell(ctx, id, "x = 1", false, 0); err != nil {
		t.Fatal(err)
	}

	tool := NewNotebookShowTool(eng)
	out, err := tool.Execute(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "x = 1") || !strings.Contains(out, "[1]") {
		t.Errorf("out = %q", out)
	}
}
