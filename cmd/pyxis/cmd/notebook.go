package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/notebook"
	"github.com/pyxis-run/pyxis/internal/tui"
)

var notebookCmd = &cobra.Command{
	Use:   "notebook",
	Short: "Manage the session notebook",
}

var notebookShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show all cells",
	RunE:  runNotebookShow,
}

var notebookClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cells and state",
	RunE:  runNotebookClear,
}

var notebookExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export the notebook as .ipynb",
	Long:  "Write the notebook as a Jupyter nbformat 4 document, to the given file or stdout.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runNotebookExport,
}

var notebookImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import cells from an .ipynb file",
	Long:  "Replace the session notebook with the code cells of a Jupyter document. Imported cells are not executed.",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotebookImport,
}

func init() {
	notebookCmd.AddCommand(notebookShowCmd)
	notebookCmd.AddCommand(notebookClearCmd)
	notebookCmd.AddCommand(notebookExportCmd)
	notebookCmd.AddCommand(notebookImportCmd)
}

func runNotebookShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	nb, err := rt.engine.ShowNotebook(id)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderNotebook(nb))
	return nil
}

func runNotebookClear(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	if err := rt.engine.ClearNotebook(context.Background(), id); err != nil {
		return err
	}
	fmt.Println("notebook cleared")
	return nil
}

func runNotebookExport(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	nb, err := rt.engine.ShowNotebook(id)
	if err != nil {
		return err
	}
	data, err := notebook.ExportIpynb(nb)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported %d cells to %s\n", len(nb.Cells), args[0])
	return nil
}

func runNotebookImport(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	imported, err := rt.engine.ImportIpynb(context.Background(), id, data)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d cells\n", len(imported.Cells))
	return nil
}
