package notebook

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sensitivity"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

// Engine state files live under this directory inside the session
// workspace. The namespace snapshot has to be readable and writable by the
// sandboxed executor, so it cannot live with the notebook documents.
const stateDirName = ".pyxis"

const (
	snapshotFile = "namespace.pkl"
	payloadFile  = "payload.json"
	resultFile   = "result.json"
	harnessFile  = "harness.py"
)

// DefaultCellTimeout bounds a cell execution when the caller passes zero.
const DefaultCellTimeout = 60 * time.Second

// EngineConfig tunes the execution engine.
type EngineConfig struct {
	// Python is the interpreter invoked inside the sandbox.
	// Default "python3".
	Python string

	// CellTimeout is the default per-cell wall-clock bound.
	CellTimeout time.Duration

	// Policy decides the fate of non-serializable namespace bindings.
	// Default PolicyDrop.
	Policy SnapshotPolicy
}

// Engine owns all Notebook state and persists it after every mutation.
//
// Cell executions within one notebook are strictly sequential: each
// depends on the snapshot its predecessor wrote, so a per-notebook mutex
// serializes them. Notebooks of distinct sessions share nothing and run
// fully in parallel.
type Engine struct {
	runner  procbox.Runner
	store   *Store
	ws      *workspace.Manager
	tracker *sensitivity.Tracker
	cfg     EngineConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine builds an engine over the given runner and stores. tracker may
// be nil, in which case every cell runs network-isolated.
func NewEngine(runner procbox.Runner, store *Store, ws *workspace.Manager, tracker *sensitivity.Tracker, cfg EngineConfig) *Engine {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.CellTimeout <= 0 {
		cfg.CellTimeout = DefaultCellTimeout
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyDrop
	}
	return &Engine{
		runner:  runner,
		store:   store,
		ws:      ws,
		tracker: tracker,
		cfg:     cfg,
		locks:   make(map[string]*sync.Mutex),
	}
}

// AddCell appends a cell to the session's notebook and, when execute is
// set, runs it. timeout zero means the engine default.
func (e *Engine) AddCell(ctx context.Context, id sessionctx.Identity, code string, execute bool, timeout time.Duration) (*Cell, error) {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	nb, err := e.loadOrCreate(id)
	if err != nil {
		return nil, err
	}

	nb.NextCellID++
	cell := &Cell{
		ID:    nb.NextCellID,
		Code:  code,
		State: StateIdle,
	}
	nb.Cells = append(nb.Cells, cell)

	if err := e.save(nb); err != nil {
		return nil, err
	}

	if execute {
		if err := e.executeCell(ctx, id, nb, cell, timeout); err != nil {
			return nil, err
		}
		if err := e.save(nb); err != nil {
			return nil, err
		}
	}
	return snapshotCell(cell), nil
}

// RerunCell executes an existing cell again, incrementing its execution
// count. The cell runs against the notebook's current snapshot and
// history, exactly as a new submission of the same code would.
func (e *Engine) RerunCell(ctx context.Context, id sessionctx.Identity, cellID int) (*Cell, error) {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	nb, err := e.load(id)
	if err != nil {
		return nil, err
	}
	cell := nb.CellByID(cellID)
	if cell == nil {
		return nil, ErrCellNotFound{ID: cellID}
	}

	if err := e.executeCell(ctx, id, nb, cell, 0); err != nil {
		return nil, err
	}
	if err := e.save(nb); err != nil {
		return nil, err
	}
	return snapshotCell(cell), nil
}

// ShowNotebook returns a copy of the session's notebook.
func (e *Engine) ShowNotebook(id sessionctx.Identity) (*Notebook, error) {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	nb, err := e.load(id)
	if err != nil {
		return nil, err
	}
	return snapshotNotebook(nb), nil
}

// ShowCell returns a copy of one cell.
func (e *Engine) ShowCell(id sessionctx.Identity, cellID int) (*Cell, error) {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	nb, err := e.load(id)
	if err != nil {
		return nil, err
	}
	cell := nb.CellByID(cellID)
	if cell == nil {
		return nil, ErrCellNotFound{ID: cellID}
	}
	return snapshotCell(cell), nil
}

// DeleteCell removes a cell. The namespace snapshot is discarded along
// with it: the forwarded state may embed bindings the deleted cell
// created, and continuity must come from the replayed history of the
// cells that remain, so later cells that depended on the deleted cell's
// variables fail with an undefined name on their next run.
func (e *Engine) DeleteCell(ctx context.Context, id sessionctx.Identity, cellID int) error {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	nb, err := e.load(id)
	if err != nil {
		return err
	}

	idx := -1
	for i, c := range nb.Cells {
		if c.ID == cellID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrCellNotFound{ID: cellID}
	}

	nb.Cells = append(nb.Cells[:idx], nb.Cells[idx+1:]...)
	rebuildHistory(nb)
	if err := e.discardSnapshot(id, nb); err != nil {
		return err
	}
	return e.save(nb)
}

// ClearNotebook removes all cells, history, and the snapshot.
func (e *Engine) ClearNotebook(ctx context.Context, id sessionctx.Identity) error {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	nb, err := e.load(id)
	if err != nil {
		return err
	}

	nb.Cells = nil
	nb.Imports = nil
	nb.Definitions = nil
	if err := e.discardSnapshot(id, nb); err != nil {
		return err
	}
	return e.save(nb)
}

// executeCell runs one cell in a fresh sandbox. Callers hold the notebook
// lock and are responsible for persisting the notebook afterwards.
//
// Outcome mapping: a sandbox timeout becomes StateTimeout; an execution
// error inside the cell becomes StateError with the traceback attached;
// an infrastructure failure (runner cannot spawn, harness produced no
// result) is returned as an error and leaves the cell in StateIdle so the
// notebook's history is not polluted by a run that never happened.
func (e *Engine) executeCell(ctx context.Context, id sessionctx.Identity, nb *Notebook, cell *Cell, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = e.cfg.CellTimeout
	}

	mergeHistory(nb, extract(cell.Code))

	hostDir, err := e.ws.Dir(id)
	if err != nil {
		return err
	}
	stateDir := filepath.Join(hostDir, stateDirName)
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("notebook: create state dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, harnessFile), []byte(pyHarness), 0o600); err != nil {
		return fmt.Errorf("notebook: write harness: %w", err)
	}

	// Empty history must reach the harness as [], never JSON null.
	payload := execPayload{
		Code:        cell.Code,
		Imports:     append([]string{}, nb.Imports...),
		Definitions: append([]string{}, nb.Definitions...),
		SnapshotOut: path.Join(stateDirName, snapshotFile),
		ResultPath:  path.Join(stateDirName, resultFile),
		Policy:      string(e.cfg.Policy),
	}
	if nb.Snapshot != "" {
		payload.SnapshotIn = path.Join(stateDirName, nb.Snapshot)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notebook: marshal payload: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, payloadFile), payloadJSON, 0o600); err != nil {
		return fmt.Errorf("notebook: write payload: %w", err)
	}
	// Stale results must never be mistaken for this run's.
	resultPath := filepath.Join(stateDir, resultFile)
	if err := os.Remove(resultPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("notebook: clear result: %w", err)
	}

	cell.State = StateRunning
	cell.Outputs = nil
	cell.StartedAt = time.Now().UTC()
	cell.ExecutionCount++

	res, err := e.runner.Run(ctx, procbox.Spec{
		Command: []string{e.cfg.Python, path.Join(stateDirName, harnessFile), path.Join(stateDirName, payloadFile)},
		BindMounts: []procbox.BindMount{
			{Source: hostDir, Target: workspace.SandboxPath},
		},
		Timeout:        timeout,
		IsolateNetwork: e.isolateNetwork(id),
		IsolatePID:     true,
		Dir:            workspace.SandboxPath,
		Env: map[string]string{
			"PATH":                    "/usr/local/bin:/usr/bin:/bin",
			"HOME":                    "/tmp",
			"PYTHONDONTWRITEBYTECODE": "1",
		},
	})
	cell.FinishedAt = time.Now().UTC()
	if err != nil {
		cell.State = StateIdle
		return err
	}

	if res.TimedOut {
		cell.State = StateTimeout
		cell.Outputs = []CellOutput{{
			Type:    OutputError,
			Content: fmt.Sprintf("execution timed out after %v", timeout),
		}}
		return nil
	}

	harnessRes, err := readResult(resultPath)
	if err != nil {
		// The harness never ran or died before writing its result:
		// infrastructure, not user code.
		cell.State = StateIdle
		return fmt.Errorf("notebook: executor produced no result (exit %d): %s", res.ExitCode, res.Stderr)
	}

	applyResult(cell, harnessRes)
	if harnessRes.OK {
		nb.Snapshot = snapshotFile
	}
	return nil
}

// ImportIpynb replaces the session's notebook with the code cells of a
// Jupyter document, outputs included. Any existing cells and snapshot are
// discarded; imported cells arrive unexecuted.
func (e *Engine) ImportIpynb(ctx context.Context, id sessionctx.Identity, data []byte) (*Notebook, error) {
	lock := e.notebookLock(id)
	lock.Lock()
	defer lock.Unlock()

	imported, err := ImportIpynb(data, id)
	if err != nil {
		return nil, err
	}

	if old, ok, err := e.store.Load(id); err != nil {
		return nil, err
	} else if ok {
		imported.CreatedAt = old.CreatedAt
		if err := e.discardSnapshot(id, old); err != nil {
			return nil, err
		}
	}

	if err := e.save(imported); err != nil {
		return nil, err
	}
	return snapshotNotebook(imported), nil
}

// isolateNetwork is decided per cell, so a sensitivity escalation takes
// effect on the very next execution.
func (e *Engine) isolateNetwork(id sessionctx.Identity) bool {
	if e.tracker == nil {
		return true
	}
	return e.tracker.RequiredNetworkMode(id.Key()) == sensitivity.NetworkNone
}

func readResult(path string) (*execResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res execResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// applyResult converts the harness result into typed cell outputs.
func applyResult(cell *Cell, res *execResult) {
	if res.Stdout != "" {
		cell.Outputs = append(cell.Outputs, CellOutput{Type: OutputText, Content: res.Stdout})
	}
	for _, h := range res.HTML {
		cell.Outputs = append(cell.Outputs, CellOutput{Type: OutputHTML, Content: h})
	}
	for _, tbl := range res.Tables {
		cell.Outputs = append(cell.Outputs, CellOutput{Type: OutputTable, Content: tbl})
	}
	for _, img := range res.Images {
		cell.Outputs = append(cell.Outputs, CellOutput{Type: OutputImage, Content: img})
	}
	if res.Stderr != "" {
		cell.Outputs = append(cell.Outputs, CellOutput{Type: OutputText, Content: res.Stderr})
	}

	if res.OK {
		cell.State = StateCompleted
	} else {
		cell.State = StateError
		cell.Outputs = append(cell.Outputs, CellOutput{Type: OutputError, Content: res.Error})
	}
}

// discardSnapshot forgets the notebook's snapshot reference and removes
// the underlying file from the workspace.
func (e *Engine) discardSnapshot(id sessionctx.Identity, nb *Notebook) error {
	if nb.Snapshot == "" {
		return nil
	}
	hostDir, err := e.ws.Dir(id)
	if err != nil {
		return err
	}
	snapPath := filepath.Join(hostDir, stateDirName, nb.Snapshot)
	if err := os.Remove(snapPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("notebook: remove snapshot: %w", err)
	}
	nb.Snapshot = ""
	return nil
}

func (e *Engine) loadOrCreate(id sessionctx.Identity) (*Notebook, error) {
	nb, ok, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		now := time.Now().UTC()
		nb = &Notebook{
			UserID:    id.UserID,
			SessionID: id.SessionID,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return nb, nil
}

func (e *Engine) load(id sessionctx.Identity) (*Notebook, error) {
	nb, ok, err := e.store.Load(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotebookNotFound{Key: id.Key()}
	}
	return nb, nil
}

func (e *Engine) save(nb *Notebook) error {
	nb.UpdatedAt = time.Now().UTC()
	return e.store.Save(nb)
}

// notebookLock returns the mutex serializing all operations on one
// session's notebook.
func (e *Engine) notebookLock(id sessionctx.Identity) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lock, ok := e.locks[id.Key()]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	e.locks[id.Key()] = lock
	return lock
}

// snapshotCell returns a deep enough copy for callers to keep.
func snapshotCell(c *Cell) *Cell {
	out := *c
	out.Outputs = append([]CellOutput(nil), c.Outputs...)
	return &out
}

func snapshotNotebook(nb *Notebook) *Notebook {
	out := *nb
	out.Cells = make([]*Cell, len(nb.Cells))
	for i, c := range nb.Cells {
		out.Cells[i] = snapshotCell(c)
	}
	out.Imports = append([]string(nil), nb.Imports...)
	out.Definitions = append([]string(nil), nb.Definitions...)
	return &out
}
