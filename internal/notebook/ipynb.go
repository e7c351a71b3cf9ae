package notebook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pyxis-run/pyxis/internal/sessionctx"
)

// Jupyter interchange, nbformat 4. Export writes a document any Jupyter
// frontend opens; import takes the code cells of such a document, keeps
// their recorded outputs, and rebuilds the replay history.

type ipynbDoc struct {
	Cells         []ipynbCell    `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

type ipynbCell struct {
	CellType       string         `json:"cell_type"`
	Source         []string       `json:"source"`
	Metadata       map[string]any `json:"metadata"`
	ExecutionCount *int           `json:"execution_count,omitempty"`
	Outputs        []ipynbOutput  `json:"outputs,omitempty"`
}

type ipynbOutput struct {
	OutputType string `json:"output_type"`

	// stream
	Name string   `json:"name,omitempty"`
	Text []string `json:"text,omitempty"`

	// error
	EName     string   `json:"ename,omitempty"`
	EValue    string   `json:"evalue,omitempty"`
	Traceback []string `json:"traceback,omitempty"`

	// display_data
	Data map[string]any `json:"data,omitempty"`
}

// ExportIpynb renders the notebook as an nbformat 4 document.
func ExportIpynb(nb *Notebook) ([]byte, error) {
	doc := ipynbDoc{
		Metadata: map[string]any{
			"language_info": map[string]any{"name": "python"},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
		Cells:         []ipynbCell{},
	}

	for _, cell := range nb.Cells {
		out := ipynbCell{
			CellType: "code",
			Source:   sourceLines(cell.Code),
			Metadata: map[string]any{},
			Outputs:  []ipynbOutput{},
		}
		if cell.ExecutionCount > 0 {
			n := cell.ExecutionCount
			out.ExecutionCount = &n
		}
		for _, o := range cell.Outputs {
			out.Outputs = append(out.Outputs, exportOutput(o))
		}
		doc.Cells = append(doc.Cells, out)
	}

	return json.MarshalIndent(doc, "", " ")
}

func exportOutput(o CellOutput) ipynbOutput {
	switch o.Type {
	case OutputError:
		return ipynbOutput{
			OutputType: "error",
			EName:      "Error",
			EValue:     firstLine(o.Content),
			Traceback:  strings.Split(o.Content, "\n"),
		}
	case OutputHTML, OutputTable:
		return ipynbOutput{
			OutputType: "display_data",
			Data:       map[string]any{"text/html": sourceLines(o.Content)},
		}
	case OutputImage:
		return ipynbOutput{
			OutputType: "display_data",
			Data:       map[string]any{"image/png": o.Content},
		}
	default:
		return ipynbOutput{
			OutputType: "stream",
			Name:       "stdout",
			Text:       sourceLines(o.Content),
		}
	}
}

// ImportIpynb builds a fresh notebook from the code cells of an nbformat
// document. Cells arrive unexecuted but keep their recorded outputs, so
// an export/import round trip preserves the ordered code/output pairs.
// Non-code cells are not carried over.
func ImportIpynb(data []byte, id sessionctx.Identity) (*Notebook, error) {
	var doc ipynbDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("notebook: parse ipynb: %w", err)
	}
	if doc.NBFormat != 4 {
		return nil, fmt.Errorf("notebook: unsupported nbformat %d", doc.NBFormat)
	}

	now := time.Now().UTC()
	nb := &Notebook{
		UserID:    id.UserID,
		SessionID: id.SessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, c := range doc.Cells {
		if c.CellType != "code" {
			continue
		}
		cell := &Cell{
			Code:  strings.Join(c.Source, ""),
			State: StateIdle,
		}
		for _, o := range c.Outputs {
			if out, ok := importOutput(o); ok {
				cell.Outputs = append(cell.Outputs, out)
			}
		}
		nb.NextCellID++
		cell.ID = nb.NextCellID
		nb.Cells = append(nb.Cells, cell)
	}
	rebuildHistory(nb)
	return nb, nil
}

// importOutput is the inverse of exportOutput. Unrecognized output types
// are skipped rather than failing the whole document.
func importOutput(o ipynbOutput) (CellOutput, bool) {
	switch o.OutputType {
	case "stream":
		return CellOutput{Type: OutputText, Content: strings.Join(o.Text, "")}, true
	case "error":
		return CellOutput{Type: OutputError, Content: strings.Join(o.Traceback, "\n")}, true
	case "display_data", "execute_result":
		if html, ok := dataText(o.Data, "text/html"); ok {
			return CellOutput{Type: OutputHTML, Content: html}, true
		}
		if img, ok := dataText(o.Data, "image/png"); ok {
			return CellOutput{Type: OutputImage, Content: img}, true
		}
		if txt, ok := dataText(o.Data, "text/plain"); ok {
			return CellOutput{Type: OutputText, Content: txt}, true
		}
	}
	return CellOutput{}, false
}

// dataText reads a mime bundle entry, which nbformat stores either as a
// single string or as a list of line strings.
func dataText(data map[string]any, mime string) (string, bool) {
	v, ok := data[mime]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		var b strings.Builder
		for _, line := range t {
			s, ok := line.(string)
			if !ok {
				return "", false
			}
			b.WriteString(s)
		}
		return b.String(), true
	}
	return "", false
}

// sourceLines splits text the way nbformat stores multi-line strings:
// every line keeps its trailing newline except possibly the last.
func sourceLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
