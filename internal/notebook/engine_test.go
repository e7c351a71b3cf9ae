package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sensitivity"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

// fakeRunner stands in for the sandbox. It records specs and, unless
// configured otherwise, plays the harness's part: it reads the payload
// and writes a canned result file where the engine expects one.
type fakeRunner struct {
	specs []procbox.Spec

	result     *execResult
	timedOut   bool
	runErr     error
	noResult   bool // exit without writing a result file
	writeSnaps bool // pretend a snapshot was written
}

func (f *fakeRunner) Run(ctx context.Context, spec procbox.Spec) (procbox.Result, error) {
	f.specs = append(f.specs, spec)
	if f.runErr != nil {
		return procbox.Result{}, f.runErr
	}
	if f.timedOut {
		return procbox.Result{ExitCode: -1, TimedOut: true}, nil
	}

	hostDir := spec.BindMounts[0].Source
	payloadData, err := os.ReadFile(filepath.Join(hostDir, stateDirName, payloadFile))
	if err != nil {
		return procbox.Result{}, err
	}
	var payload execPayload
	if err := json.Unmarshal(payloadData, &payload); err != nil {
		return procbox.Result{}, err
	}

	if f.noResult {
		return procbox.Result{ExitCode: 1, Stderr: "boom"}, nil
	}

	res := f.result
	if res == nil {
		res = &execResult{OK: true, Stdout: "ok\n"}
	}
	data, err := json.Marshal(res)
	if err != nil {
		return procbox.Result{}, err
	}
	if err := os.WriteFile(filepath.Join(hostDir, payload.ResultPath), data, 0o600); err != nil {
		return procbox.Result{}, err
	}
	if f.writeSnaps && res.OK {
		if err := os.WriteFile(filepath.Join(hostDir, payload.SnapshotOut), []byte("pickled"), 0o600); err != nil {
			return procbox.Result{}, err
		}
	}
	return procbox.Result{ExitCode: 0}, nil
}

func (f *fakeRunner) lastSpec(t *testing.T) procbox.Spec {
	t.Helper()
	if len(f.specs) == 0 {
		t.Fatal("runner never invoked")
	}
	return f.specs[len(f.specs)-1]
}

func newTestEngine(t *testing.T, runner procbox.Runner) (*Engine, sessionctx.Identity) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "notebooks"))
	if err != nil {
		t.Fatal(err)
	}
	ws := workspace.NewManager(t.TempDir())
	eng := NewEngine(runner, store, ws, nil, EngineConfig{})
	return eng, sessionctx.Identity{UserID: "alice", SessionID: "s1"}
}

func TestAddCellWithoutExecution(t *testing.T) {
	runner := &fakeRunner{}
	eng, id := newTestEngine(t, runner)

	cell, err := eng.AddCell(context.Background(), id, "x = 1", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cell.ID != 1 || cell.State != StateIdle || cell.ExecutionCount != 0 {
		t.Errorf("cell = %+v, want idle unexecuted id 1", cell)
	}
	if len(runner.specs) != 0 {
		t.Error("runner invoked for execute=false")
	}

	nb, err := eng.ShowNotebook(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(nb.Cells) != 1 {
		t.Errorf("cell not persisted: %+v", nb)
	}
}

func TestAddCellExecutes(t *testing.T) {
	runner := &fakeRunner{result: &execResult{OK: true, Stdout: "3\n"}, writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	cell, err := eng.AddCell(context.Background(), id, "print(1 + 2)", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cell.State != StateCompleted || cell.ExecutionCount != 1 {
		t.Errorf("cell = %+v", cell)
	}
	if len(cell.Outputs) != 1 || cell.Outputs[0].Type != OutputText || cell.Outputs[0].Content != "3\n" {
		t.Errorf("outputs = %+v", cell.Outputs)
	}

	spec := runner.lastSpec(t)
	if spec.Dir != workspace.SandboxPath {
		t.Errorf("Dir = %q", spec.Dir)
	}
	if !spec.IsolatePID {
		t.Error("PID isolation off")
	}
	if !spec.IsolateNetwork {
		t.Error("network open with no tracker attached")
	}

	nb, err := eng.ShowNotebook(id)
	if err != nil {
		t.Fatal(err)
	}
	if nb.Snapshot == "" {
		t.Error("snapshot not recorded after successful run")
	}
}

func TestSnapshotForwardedToNextCell(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddCell(context.Background(), id, "print(x)", true, 0); err != nil {
		t.Fatal(err)
	}

	hostDir, _ := eng.ws.Dir(id)
	payloadData, err := os.ReadFile(filepath.Join(hostDir, stateDirName, payloadFile))
	if err != nil {
		t.Fatal(err)
	}
	var payload execPayload
	if err := json.Unmarshal(payloadData, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.SnapshotIn == "" {
		t.Error("second cell not handed the first cell's snapshot")
	}
}

func TestFailedCellKeepsOldSnapshot(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err != nil {
		t.Fatal(err)
	}

	runner.result = &execResult{OK: false, Error: "ZeroDivisionError: division by zero"}
	cell, err := eng.AddCell(context.Background(), id, "1 / 0", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cell.State != StateError {
		t.Errorf("state = %v, want ERROR", cell.State)
	}
	hasError := false
	for _, o := range cell.Outputs {
		if o.Type == OutputError {
			hasError = true
		}
	}
	if !hasError {
		t.Errorf("no error output: %+v", cell.Outputs)
	}

	nb, _ := eng.ShowNotebook(id)
	if nb.Snapshot == "" {
		t.Error("failed cell discarded the prior snapshot")
	}
}

func TestTimeoutMarksCellWithoutError(t *testing.T) {
	runner := &fakeRunner{timedOut: true}
	eng, id := newTestEngine(t, runner)

	cell, err := eng.AddCell(context.Background(), id, "while True: pass", true, time.Second)
	if err != nil {
		t.Fatalf("timeout surfaced as error: %v", err)
	}
	if cell.State != StateTimeout {
		t.Errorf("state = %v, want TIMEOUT", cell.State)
	}
	if cell.ExecutionCount != 1 {
		t.Errorf("ExecutionCount = %d, want 1", cell.ExecutionCount)
	}
}

func TestTimeoutLeavesLaterCellsRunnable(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err != nil {
		t.Fatal(err)
	}

	runner.timedOut = true
	if _, err := eng.AddCell(context.Background(), id, "while True: pass", true, 0); err != nil {
		t.Fatal(err)
	}

	runner.timedOut = false
	runner.result = &execResult{OK: true, Stdout: "1\n"}
	cell, err := eng.AddCell(context.Background(), id, "print(x)", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if cell.State != StateCompleted {
		t.Errorf("cell after timeout = %v, want COMPLETED", cell.State)
	}
}

func TestRunnerFailureIsInfra(t *testing.T) {
	runner := &fakeRunner{runErr: errors.New("spawn failed")}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err == nil {
		t.Fatal("infrastructure failure swallowed")
	}

	nb, err := eng.ShowNotebook(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(nb.Cells) != 1 || nb.Cells[0].State != StateIdle {
		t.Errorf("cell after infra failure = %+v, want idle", nb.Cells)
	}
}

func TestMissingResultIsInfra(t *testing.T) {
	runner := &fakeRunner{noResult: true}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err == nil {
		t.Fatal("harness crash swallowed")
	}
}

func TestRerunCell(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	cell, err := eng.AddCell(context.Background(), id, "x = 1", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	rerun, err := eng.RerunCell(context.Background(), id, cell.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rerun.ID != cell.ID {
		t.Errorf("rerun changed id: %d -> %d", cell.ID, rerun.ID)
	}
	if rerun.ExecutionCount != 2 {
		t.Errorf("ExecutionCount = %d, want 2", rerun.ExecutionCount)
	}

	if _, err := eng.RerunCell(context.Background(), id, 99); !errors.As(err, &ErrCellNotFound{}) {
		t.Errorf("unknown cell id: err = %v", err)
	}
}

func TestDeleteCellDiscardsSnapshotAndHistory(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	first, err := eng.AddCell(context.Background(), id, "import os\ndef f():\n    return 1\n", true, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddCell(context.Background(), id, "print(f())", true, 0); err != nil {
		t.Fatal(err)
	}

	if err := eng.DeleteCell(context.Background(), id, first.ID); err != nil {
		t.Fatal(err)
	}

	nb, err := eng.ShowNotebook(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(nb.Cells) != 1 {
		t.Fatalf("cells = %d, want 1", len(nb.Cells))
	}
	if nb.Snapshot != "" {
		t.Error("snapshot survived deletion of a contributing cell")
	}
	if len(nb.Imports) != 0 || len(nb.Definitions) != 0 {
		t.Errorf("history not rebuilt: %v / %v", nb.Imports, nb.Definitions)
	}

	hostDir, _ := eng.ws.Dir(id)
	if _, err := os.Stat(filepath.Join(hostDir, stateDirName, snapshotFile)); !os.IsNotExist(err) {
		t.Error("snapshot file still on disk")
	}
}

func TestClearNotebook(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "import os\nx = 1", true, 0); err != nil {
		t.Fatal(err)
	}
	if err := eng.ClearNotebook(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	nb, err := eng.ShowNotebook(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(nb.Cells) != 0 || nb.Snapshot != "" || len(nb.Imports) != 0 {
		t.Errorf("notebook not cleared: %+v", nb)
	}
}

func TestShowCell(t *testing.T) {
	runner := &fakeRunner{}
	eng, id := newTestEngine(t, runner)

	added, err := eng.AddCell(context.Background(), id, "x = 1", false, 0)
	if err != nil {
		t.Fatal(err)
	}
	got, err := eng.ShowCell(id, added.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Code != "x = 1" {
		t.Errorf("Code = %q", got.Code)
	}
	if _, err := eng.ShowCell(id, 42); !errors.As(err, &ErrCellNotFound{}) {
		t.Errorf("unknown cell: err = %v", err)
	}
}

func TestShowNotebookMissing(t *testing.T) {
	eng, id := newTestEngine(t, &fakeRunner{})
	if _, err := eng.ShowNotebook(id); !errors.As(err, &ErrNotebookNotFound{}) {
		t.Errorf("missing notebook: err = %v", err)
	}
}

func TestSensitivityClosesNetwork(t *testing.T) {
	runner := &fakeRunner{}
	store, err := NewStore(filepath.Join(t.TempDir(), "notebooks"))
	if err != nil {
		t.Fatal(err)
	}
	tracker, err := sensitivity.NewTracker(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ws := workspace.NewManager(t.TempDir())
	eng := NewEngine(runner, store, ws, tracker, EngineConfig{})
	id := sessionctx.Identity{UserID: "alice", SessionID: "s1"}

	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err != nil {
		t.Fatal(err)
	}
	if runner.lastSpec(t).IsolateNetwork {
		t.Error("network isolated for a public session")
	}

	if err := tracker.AddDataset(id.Key(), "payroll", sensitivity.Confidential); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddCell(context.Background(), id, "y = 2", true, 0); err != nil {
		t.Fatal(err)
	}
	if !runner.lastSpec(t).IsolateNetwork {
		t.Error("network still open after confidential dataset loaded")
	}
}

func TestFirstCellPayloadHasEmptyHistoryArrays(t *testing.T) {
	runner := &fakeRunner{}
	eng, id := newTestEngine(t, runner)

	// No imports or defs accumulated yet: the harness must still see
	// arrays, never null.
	if _, err := eng.AddCell(context.Background(), id, "x = 1", true, 0); err != nil {
		t.Fatal(err)
	}

	hostDir, _ := eng.ws.Dir(id)
	payloadData, err := os.ReadFile(filepath.Join(hostDir, stateDirName, payloadFile))
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payloadData, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"imports", "definitions"} {
		if string(raw[key]) != "[]" {
			t.Errorf("%s = %s, want []", key, raw[key])
		}
	}
}

func TestHistoryInPayload(t *testing.T) {
	runner := &fakeRunner{writeSnaps: true}
	eng, id := newTestEngine(t, runner)

	if _, err := eng.AddCell(context.Background(), id, "import math\ndef area(r):\n    return math.pi * r * r\n", true, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddCell(context.Background(), id, "print(area(2))", true, 0); err != nil {
		t.Fatal(err)
	}

	hostDir, _ := eng.ws.Dir(id)
	payloadData, err := os.ReadFile(filepath.Join(hostDir, stateDirName, payloadFile))
	if err != nil {
		t.Fatal(err)
	}
	var payload execPayload
	if err := json.Unmarshal(payloadData, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Imports) != 1 || len(payload.Definitions) != 1 {
		t.Errorf("history not forwarded: %+v", payload)
	}
}
