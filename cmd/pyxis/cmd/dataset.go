package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/sensitivity"
)

var datasetLevel string

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Track datasets and session sensitivity",
}

var datasetAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a dataset loaded into the session",
	Long:  "Record a dataset and its sensitivity. Session sensitivity only ever rises; anything above public closes sandbox network access for later executions.",
	Args:  cobra.ExactArgs(1),
	RunE:  runDatasetAdd,
}

var datasetListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the session's datasets and sensitivity",
	RunE:  runDatasetList,
}

var datasetResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the session's sensitivity state",
	Long:  "Administrative escape hatch: forget the session's datasets and return it to public. Normal operation never lowers sensitivity.",
	RunE:  runDatasetReset,
}

func init() {
	datasetAddCmd.Flags().StringVar(&datasetLevel, "level", "internal", "sensitivity level: public, internal, confidential, secret")

	datasetCmd.AddCommand(datasetAddCmd)
	datasetCmd.AddCommand(datasetListCmd)
	datasetCmd.AddCommand(datasetResetCmd)
}

func runDatasetAdd(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	level, err := sensitivity.ParseLevel(datasetLevel)
	if err != nil {
		return err
	}
	if err := rt.tracker.AddDataset(id.Key(), args[0], level); err != nil {
		return err
	}

	key := id.Key()
	fmt.Printf("registered %q; session sensitivity is %s, network %s\n",
		args[0], rt.tracker.Sensitivity(key), rt.tracker.RequiredNetworkMode(key))
	return nil
}

func runDatasetList(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}
	key := id.Key()

	fmt.Printf("sensitivity: %s\n", rt.tracker.Sensitivity(key))
	fmt.Printf("network:     %s\n", rt.tracker.RequiredNetworkMode(key))
	datasets := rt.tracker.Datasets(key)
	if len(datasets) == 0 {
		fmt.Println("datasets:    none")
	} else {
		fmt.Printf("datasets:    %s\n", strings.Join(datasets, ", "))
	}
	return nil
}

func runDatasetReset(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	if err := rt.tracker.Reset(id.Key()); err != nil {
		return err
	}
	fmt.Println("sensitivity state reset")
	return nil
}
