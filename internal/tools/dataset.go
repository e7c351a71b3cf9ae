package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/pyxis-run/pyxis/internal/sensitivity"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
)

// DatasetRegisterTool records that a dataset of some sensitivity was
// loaded into the session. Session sensitivity only ever rises; loading
// anything above public closes sandbox network access for every later
// execution.
type DatasetRegisterTool struct {
	BaseTool
	tracker *sensitivity.Tracker
}

func NewDatasetRegisterTool(tracker *sensitivity.Tracker) *DatasetRegisterTool {
	parameters := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Dataset identifier",
			},
			"sensitivity": map[string]interface{}{
				"type":        "string",
				"description": "One of: public, internal, confidential, secret",
			},
		},
		"required": []string{"name", "sensitivity"},
	}

	return &DatasetRegisterTool{
		BaseTool: NewBaseTool(
			"dataset_register",
			"Register a dataset loaded into the session. Raises the session's sensitivity; sensitivity never decreases.",
			parameters,
		),
		tracker: tracker,
	}
}

func (t *DatasetRegisterTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}

	name, err := GetStringParam(params, "name")
	if err != nil {
		return "", fmt.Errorf("dataset_register: %w", err)
	}
	levelName, err := GetStringParam(params, "sensitivity")
	if err != nil {
		return "", fmt.Errorf("dataset_register: %w", err)
	}
	level, err := sensitivity.ParseLevel(levelName)
	if err != nil {
		return "", fmt.Errorf("dataset_register: %w", err)
	}

	if err := t.tracker.AddDataset(id.Key(), name, level); err != nil {
		return "", err
	}
	return fmt.Sprintf("dataset %q registered; session sensitivity is %s, network %s",
		name, t.tracker.Sensitivity(id.Key()), t.tracker.RequiredNetworkMode(id.Key())), nil
}

// SensitivityStatusTool reports the session's sensitivity posture.
type SensitivityStatusTool struct {
	BaseTool
	tracker *sensitivity.Tracker
}

func NewSensitivityStatusTool(tracker *sensitivity.Tracker) *SensitivityStatusTool {
	return &SensitivityStatusTool{
		BaseTool: NewBaseTool(
			"sensitivity_status",
			"Show the session's sensitivity level, registered datasets, and required network mode.",
			map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		),
		tracker: tracker,
	}
}

func (t *SensitivityStatusTool) Execute(ctx context.Context, params map[string]interface{}) (string, error) {
	id, err := sessionctx.MustFrom(ctx)
	if err != nil {
		return "", err
	}
	key := id.Key()

	var b strings.Builder
	fmt.Fprintf(&b, "sensitivity: %s\n", t.tracker.Sensitivity(key))
	fmt.Fprintf(&b, "network: %s\n", t.tracker.RequiredNetworkMode(key))
	datasets := t.tracker.Datasets(key)
	if len(datasets) == 0 {
		b.WriteString("datasets: none")
	} else {
		fmt.Fprintf(&b, "datasets: %s", strings.Join(datasets, ", "))
	}
	return b.String(), nil
}
