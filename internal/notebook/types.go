// Package notebook implements a stateful code-execution engine over
// disposable sandboxed processes.
//
// Callers see a persistent, incrementally-built interpreter: variables
// defined in one cell are visible to later cells. No interpreter actually
// survives between cells. Each execution runs in a fresh sandbox that
// restores the previous cell's serialized namespace snapshot, replays the
// accumulated import and definition history, runs the new code, and
// serializes the namespace back out. Keeping every cell a fresh process is
// what lets a timeout kill one cell without destroying later state, and
// what lets the sensitivity tracker's network ratchet take effect on the
// very next cell.
package notebook

import (
	"fmt"
	"time"
)

// CellState is the lifecycle state of a cell.
type CellState string

const (
	StateIdle      CellState = "IDLE"
	StateRunning   CellState = "RUNNING"
	StateCompleted CellState = "COMPLETED"
	StateError     CellState = "ERROR"
	StateTimeout   CellState = "TIMEOUT"
)

// OutputType classifies one captured output of a cell.
type OutputType string

const (
	OutputText  OutputType = "TEXT"
	OutputError OutputType = "ERROR"
	OutputHTML  OutputType = "HTML"
	OutputImage OutputType = "IMAGE"
	OutputTable OutputType = "TABLE"
)

// CellOutput is one typed output. Image content is base64-encoded PNG.
type CellOutput struct {
	Type    OutputType `json:"type"`
	Content string     `json:"content"`
}

// Cell is one code submission and its most recent execution record.
// Re-executing a cell reuses its ID and increments ExecutionCount.
type Cell struct {
	ID             int          `json:"id"`
	Code           string       `json:"code"`
	State          CellState    `json:"state"`
	Outputs        []CellOutput `json:"outputs,omitempty"`
	ExecutionCount int          `json:"executionCount"`
	StartedAt      time.Time    `json:"startedAt,omitzero"`
	FinishedAt     time.Time    `json:"finishedAt,omitzero"`
}

// Notebook is the persisted document for one (user, session) pair.
//
// Snapshot names the latest namespace snapshot file, relative to the
// session workspace. The notebook treats the snapshot as an opaque blob;
// only the in-sandbox executor reads or writes its contents.
type Notebook struct {
	UserID      string   `json:"userId"`
	SessionID   string   `json:"sessionId"`
	Cells       []*Cell  `json:"cells"`
	Imports     []string `json:"imports,omitempty"`
	Definitions []string `json:"definitions,omitempty"`
	Snapshot    string   `json:"snapshot,omitempty"`
	NextCellID  int      `json:"nextCellId"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CellByID returns the cell with the given id, or nil.
func (nb *Notebook) CellByID(id int) *Cell {
	for _, c := range nb.Cells {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// ErrCellNotFound reports a caller-supplied cell id that does not exist.
// This is caller misuse, distinct from a failure of executed code.
type ErrCellNotFound struct {
	ID int
}

func (e ErrCellNotFound) Error() string {
	return fmt.Sprintf("cell %d not found", e.ID)
}

// ErrNotebookNotFound reports an operation on a session with no notebook.
type ErrNotebookNotFound struct {
	Key string
}

func (e ErrNotebookNotFound) Error() string {
	return fmt.Sprintf("no notebook for session %s", e.Key)
}
