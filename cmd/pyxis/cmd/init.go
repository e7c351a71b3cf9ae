package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the default configuration",
	Long:  "Write ~/.pyxis/config.json with default values and create the workspace and data directories. Existing configuration is left untouched.",
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	existed := config.Exists("")
	if err := config.InitConfig(); err != nil {
		return err
	}
	cfg, err := config.LoadConfig("")
	if err != nil {
		return err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}

	if existed {
		fmt.Printf("config already present at %s\n", config.GetConfigPath())
	} else {
		fmt.Printf("wrote %s\n", config.GetConfigPath())
	}
	return nil
}
