package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/container"
	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and backend status",
	Long:  "Display the current pyxis configuration and which sandbox backends are available.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	backend := "local fallback"
	bw := procbox.NewBwrapRunner()
	if cfg.Process.BwrapPath != "" {
		bw.Path = cfg.Process.BwrapPath
	}
	if bw.Available() {
		backend = "bubblewrap"
	}

	engineUp := false
	if mgr, err := container.NewManager(nil, nil, container.Config{}); err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		engineUp = mgr.Ping(ctx) == nil
		cancel()
	}

	return tui.ShowStatus(tui.Status{
		Config:          cfg,
		ProcessBackend:  backend,
		ContainerEngine: engineUp,
	})
}
