package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/container"
	"github.com/pyxis-run/pyxis/internal/tools"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the agent tool surface",
	Long:  "Show the tools the execution subsystem exposes to agents, optionally as function-calling definitions.",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "emit function-calling definitions as JSON")
}

func runTools(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if mgr, err := container.NewManager(rt.tracker, rt.ws, containerConfig(rt)); err == nil {
		registry.MustRegister(tools.NewSandboxTool(mgr))
	}
	registry.MustRegister(tools.NewProcessTool(rt.runner, rt.ws, rt.cfg.ProcessTimeout()))
	registry.MustRegister(tools.NewNotebookAddTool(rt.engine))
	registry.MustRegister(tools.NewNotebookRerunTool(rt.engine))
	registry.MustRegister(tools.NewNotebookDeleteTool(rt.engine))
	registry.MustRegister(tools.NewNotebookShowTool(rt.engine))
	registry.MustRegister(tools.NewNotebookClearTool(rt.engine))
	registry.MustRegister(tools.NewNotebookExportTool(rt.engine, rt.ws))
	registry.MustRegister(tools.NewDatasetRegisterTool(rt.tracker))
	registry.MustRegister(tools.NewSensitivityStatusTool(rt.tracker))

	if toolsJSON {
		data, err := json.MarshalIndent(registry.GetDefinitions(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	for _, name := range registry.List() {
		fmt.Printf("%-22s %s\n", name, registry.Get(name).Description())
	}
	return nil
}
