package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/tui"
)

var (
	cellNoExec   bool
	cellTimeout  int
	cellFromFile string
)

var cellCmd = &cobra.Command{
	Use:   "cell",
	Short: "Manage notebook cells",
}

var cellAddCmd = &cobra.Command{
	Use:   "add [code]",
	Short: "Add a cell and run it",
	Long:  "Append a Python cell to the session notebook and execute it. Pass the code as an argument, via --file, or on stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCellAdd,
}

var cellRerunCmd = &cobra.Command{
	Use:   "rerun <id>",
	Short: "Re-execute a cell",
	Args:  cobra.ExactArgs(1),
	RunE:  runCellRerun,
}

var cellDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a cell",
	Long:  "Remove a cell from the notebook. State the cell contributed is discarded; later cells that used its variables will fail on their next run.",
	Args:  cobra.ExactArgs(1),
	RunE:  runCellDelete,
}

var cellShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one cell with its outputs",
	Args:  cobra.ExactArgs(1),
	RunE:  runCellShow,
}

func init() {
	cellAddCmd.Flags().BoolVar(&cellNoExec, "no-exec", false, "add the cell without running it")
	cellAddCmd.Flags().IntVar(&cellTimeout, "timeout", 0, "timeout in seconds (0 uses the configured default)")
	cellAddCmd.Flags().StringVar(&cellFromFile, "file", "", "read the cell code from a file")

	cellCmd.AddCommand(cellAddCmd)
	cellCmd.AddCommand(cellRerunCmd)
	cellCmd.AddCommand(cellDeleteCmd)
	cellCmd.AddCommand(cellShowCmd)
}

func runCellAdd(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	code, err := cellCode(args)
	if err != nil {
		return err
	}

	var timeout time.Duration
	if cellTimeout > 0 {
		timeout = time.Duration(cellTimeout) * time.Second
	}

	cell, err := rt.engine.AddCell(context.Background(), id, code, !cellNoExec, timeout)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderCell(cell))
	return nil
}

func runCellRerun(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}
	cellID, err := parseCellID(args[0])
	if err != nil {
		return err
	}

	cell, err := rt.engine.RerunCell(context.Background(), id, cellID)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderCell(cell))
	return nil
}

func runCellDelete(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}
	cellID, err := parseCellID(args[0])
	if err != nil {
		return err
	}

	if err := rt.engine.DeleteCell(context.Background(), id, cellID); err != nil {
		return err
	}
	fmt.Printf("cell %d deleted\n", cellID)
	return nil
}

func runCellShow(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}
	cellID, err := parseCellID(args[0])
	if err != nil {
		return err
	}

	cell, err := rt.engine.ShowCell(id, cellID)
	if err != nil {
		return err
	}
	fmt.Println(tui.RenderCell(cell))
	return nil
}

func cellCode(args []string) (string, error) {
	if cellFromFile != "" {
		data, err := os.ReadFile(cellFromFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func parseCellID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid cell id %q", s)
	}
	return id, nil
}
