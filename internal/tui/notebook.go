package tui

import (
	"fmt"
	"strings"

	"github.com/pyxis-run/pyxis/internal/notebook"
)

// RenderNotebook writes the whole notebook: one block per cell, code
// plus a compact output preview.
func RenderNotebook(nb *notebook.Notebook) string {
	if len(nb.Cells) == 0 {
		return mutedStyle.Render("notebook is empty")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Notebook %s:%s", nb.UserID, nb.SessionID)))
	b.WriteString("\n")

	for _, cell := range nb.Cells {
		b.WriteString("\n")
		b.WriteString(renderCellHeader(cell))
		b.WriteString("\n")
		b.WriteString(codeStyle.Render(cell.Code))
		b.WriteString("\n")
		if preview := previewOutputs(cell); preview != "" {
			b.WriteString(outputStyle.Render(preview))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderCell writes one cell in full, all outputs flattened for the
// terminal.
func RenderCell(cell *notebook.Cell) string {
	var b strings.Builder
	b.WriteString(renderCellHeader(cell))
	b.WriteString("\n")
	b.WriteString(codeStyle.Render(cell.Code))

	for _, out := range cell.Outputs {
		b.WriteString("\n")
		b.WriteString(outputStyle.Render(renderOutput(out)))
	}
	return b.String()
}

func renderCellHeader(cell *notebook.Cell) string {
	header := fmt.Sprintf("[%d]", cell.ID)
	if cell.ExecutionCount > 0 {
		header = fmt.Sprintf("[%d] run %d", cell.ID, cell.ExecutionCount)
	}
	return fmt.Sprintf("%s %s", valueStyle.Render(header), stateStyle(string(cell.State)).Render(string(cell.State)))
}

func renderOutput(out notebook.CellOutput) string {
	switch out.Type {
	case notebook.OutputError:
		return errorStyle.Render(strings.TrimRight(out.Content, "\n"))
	case notebook.OutputHTML, notebook.OutputTable:
		return FlattenHTML(out.Content)
	case notebook.OutputImage:
		return mutedStyle.Render(fmt.Sprintf("[image output, %d bytes base64]", len(out.Content)))
	default:
		return strings.TrimRight(out.Content, "\n")
	}
}

// previewOutputs shows the first lines of a cell's output in listings.
func previewOutputs(cell *notebook.Cell) string {
	const maxLines = 4
	var lines []string
	for _, out := range cell.Outputs {
		rendered := renderOutput(out)
		for _, line := range strings.Split(rendered, "\n") {
			lines = append(lines, line)
			if len(lines) >= maxLines {
				return strings.Join(lines, "\n") + "\n" + mutedStyle.Render("...")
			}
		}
	}
	return strings.Join(lines, "\n")
}
