package tools

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pyxis-run/pyxis/internal/notebook"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

// NotebookAddTool appends a cell to the session's notebook and runs it.
type NotebookAddTool struct {
	BaseTool
	eng *notebook.Engine
}

func NewNotebookAddTool(eng *notebook.Engine) *NotebookAddTool {
	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"code": map[string]interface{}{
				"type":        "string",
				"description": "Python code for the new cell",
			},
			"execute": map[string]interface{}{
				"type":        "boolean",
				"description": "Run the cell immediately (default true)",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Wall-clock bound for the execution (optional)",
			},
		},
		"required": []string{"code"},
	}

	return &NotebookAddTool{
		BaseTool: NewBaseTool(
			"notebook_add_cell",
			"Add a code cell to the session notebook. Variables persist between cells. Executed in an isolated sandbox.",
			parameters,
		),
		eng: eng,
	}
}

func (t *NotebookAddTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}
	code, err := GetStringParam(params, "code")
	if err != nil {
		return "", fmt.Errorf("notebook_add_cell: %w", err)
	}

	execute := GetBoolParamOr(params, "execute", true)
	var timeout time.Duration
	if secs := GetIntParamOr(params, "timeout_seconds", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	cell, err := t.eng.AddCell(ctx, id, code, execute, timeout)
	if err != nil {
		return "", err
	}
	return renderCell(cell), nil
}

// NotebookRerunTool re-executes an existing cell.
type NotebookRerunTool struct {
	BaseTool
	eng *notebook.Engine
}

func NewNotebookRerunTool(eng *notebook.Engine) *NotebookRerunTool {
	return &NotebookRerunTool{
		BaseTool: NewBaseTool(
			"notebook_rerun_cell",
			"Re-execute an existing notebook cell against the current state.",
			cellIDParams(),
		),
		eng: eng,
	}
}

func (t *NotebookRerunTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}
	cellID, err := GetIntParam(params, "cell_id")
	if err != nil {
		return "", fmt.Errorf("notebook_rerun_cell: %w", err)
	}

	cell, err := t.eng.RerunCell(ctx, id, cellID)
	if err != nil {
		return "", err
	}
	return renderCell(cell), nil
}

// NotebookDeleteTool removes a cell. Later cells that depended on its
// variables will fail on their next run.
type NotebookDeleteTool struct {
	BaseTool
	eng *notebook.Engine
}

func NewNotebookDeleteTool(eng *notebook.Engine) *NotebookDeleteTool {
	return &NotebookDeleteTool{
		BaseTool: NewBaseTool(
			"notebook_delete_cell",
			"Delete a notebook cell. State contributed by the cell is discarded.",
			cellIDParams(),
		),
		eng: eng,
	}
}

func (t *NotebookDeleteTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}
	cellID, err := GetIntParam(params, "cell_id")
	if err != nil {
		return "", fmt.Errorf("notebook_delete_cell: %w", err)
	}

	if err := t.eng.DeleteCell(ctx, id, cellID); err != nil {
		return "", err
	}
	return fmt.Sprintf("cell %d deleted", cellID), nil
}

// NotebookShowTool lists the notebook, or one cell in full.
type NotebookShowTool struct {
	BaseTool
	eng *notebook.Engine
}

func NewNotebookShowTool(eng *notebook.Engine) *NotebookShowTool {
	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"cell_id": map[string]interface{}{
				"type":        "integer",
				"description": "Show only this cell, with full outputs (optional)",
			},
		},
	}

	return &NotebookShowTool{
		BaseTool: NewBaseTool(
			"notebook_show",
			"Show the session notebook: cells, states, and outputs.",
			parameters,
		),
		eng: eng,
	}
}

func (t *NotebookShowTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}

	if cellID := GetIntParamOr(params, "cell_id", 0); cellID > 0 {
		cell, err := t.eng.ShowCell(id, cellID)
		if err != nil {
			return "", err
		}
		return renderCell(cell), nil
	}

	nb, err := t.eng.ShowNotebook(id)
	if err != nil {
		return "", err
	}
	if len(nb.Cells) == 0 {
		return "notebook is empty", nil
	}

	var b strings.Builder
	for _, cell := range nb.Cells {
		fmt.Fprintf(&b, "[%d] %s\n%s\n", cell.ID, cell.State, indent(cell.Code))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// NotebookClearTool resets the session notebook.
type NotebookClearTool struct {
	BaseTool
	eng *notebook.Engine
}

func NewNotebookClearTool(eng *notebook.Engine) *NotebookClearTool {
	return &NotebookClearTool{
		BaseTool: NewBaseTool(
			"notebook_clear",
			"Remove all cells and state from the session notebook.",
			map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		),
		eng: eng,
	}
}

func (t *NotebookClearTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}
	if err := t.eng.ClearNotebook(ctx, id); err != nil {
		return "", err
	}
	return "notebook cleared", nil
}

// NotebookExportTool writes the notebook as an .ipynb file into the
// session workspace, where sandboxed code can read it.
type NotebookExportTool struct {
	BaseTool
	eng *notebook.Engine
	ws  *workspace.Manager
}

func NewNotebookExportTool(eng *notebook.Engine, ws *workspace.Manager) *NotebookExportTool {
	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Destination inside the workspace (default notebook.ipynb)",
			},
		},
	}

	return &NotebookExportTool{
		BaseTool: NewBaseTool(
			"notebook_export",
			"Export the session notebook to a Jupyter .ipynb file in the workspace.",
			parameters,
		),
		eng: eng,
		ws:  ws,
	}
}

func (t *NotebookExportTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}
	dest := GetStringParamOr(params, "path", "notebook.ipynb")

	nb, err := t.eng.ShowNotebook(id)
	if err != nil {
		return "", err
	}
	data, err := notebook.ExportIpynb(nb)
	if err != nil {
		return "", err
	}

	host, err := t.ws.HostPath(id, dest)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(host, data, 0o600); err != nil {
		return "", fmt.Errorf("write notebook export: %w", err)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(dest, workspace.SandboxPath), "/")
	return fmt.Sprintf("exported %d cells to %s", len(nb.Cells), path.Join(workspace.SandboxPath, rel)), nil
}

func cellIDParams() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"cell_id": map[string]interface{}{
				"type":        "integer",
				"description": "ID of the target cell",
			},
		},
		"required": []string{"cell_id"},
	}
}

// renderCell formats a cell for the tool caller: state line, then each
// output. Image payloads are summarized rather than inlined.
func renderCell(cell *notebook.Cell) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cell %d: %s (run %d)", cell.ID, cell.State, cell.ExecutionCount)
	for _, out := range cell.Outputs {
		b.WriteString("\n")
		switch out.Type {
		case notebook.OutputImage:
			fmt.Fprintf(&b, "[image, %d bytes base64]", len(out.Content))
		case notebook.OutputError:
			fmt.Fprintf(&b, "error:\n%s", strings.TrimRight(out.Content, "\n"))
		default:
			b.WriteString(strings.TrimRight(out.Content, "\n"))
		}
	}
	return b.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
