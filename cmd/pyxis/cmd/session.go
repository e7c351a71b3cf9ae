package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/container"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the session's sandbox environment",
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Destroy the session's persistent container",
	Long:  "Stop and remove the container backing the session's persistent sandbox. The workspace directory is host-backed and survives; the next exec creates a fresh container.",
	RunE:  runSessionClose,
}

func init() {
	sessionCmd.AddCommand(sessionCloseCmd)
}

func runSessionClose(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	id, err := identity()
	if err != nil {
		return err
	}

	mgr, err := container.NewManager(rt.tracker, rt.ws, containerConfig(rt))
	if err != nil {
		return err
	}
	if err := mgr.CloseSession(context.Background(), id); err != nil {
		return err
	}
	fmt.Printf("session %s closed\n", id)
	return nil
}
