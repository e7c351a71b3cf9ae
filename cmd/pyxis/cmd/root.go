package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pyxis-run/pyxis/internal/config"
	"github.com/pyxis-run/pyxis/internal/notebook"
	"github.com/pyxis-run/pyxis/internal/procbox"
	"github.com/pyxis-run/pyxis/internal/sensitivity"
	"github.com/pyxis-run/pyxis/internal/sessionctx"
	"github.com/pyxis-run/pyxis/internal/workspace"
)

var (
	flagConfig  string
	flagUser    string
	flagSession string
)

var rootCmd = &cobra.Command{
	Use:   "pyxis",
	Short: "pyxis - isolated code execution for agent sessions",
	Long:  `pyxis runs untrusted commands and stateful Python notebooks inside sandboxed processes and containers, with per-session workspaces and data-sensitivity tracking.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default ~/.pyxis/config.json)")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "local", "user id owning the session")
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "default", "session id")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(cellCmd)
	rootCmd.AddCommand(notebookCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

func identity() (sessionctx.Identity, error) {
	id := sessionctx.Identity{UserID: flagUser, SessionID: flagSession}
	if !id.Valid() {
		return sessionctx.Identity{}, fmt.Errorf("both --user and --session must be set")
	}
	return id, nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// deps bundles the subsystems a command needs. Each invocation builds
// a fresh one from the loaded config.
type deps struct {
	cfg     *config.Config
	ws      *workspace.Manager
	tracker *sensitivity.Tracker
	runner  procbox.Runner
	engine  *notebook.Engine
}

func newRuntime() (*deps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ws := workspace.NewManager(cfg.WorkspaceRoot())
	tracker, err := sensitivity.NewTracker(cfg.DataPath() + "/sensitivity")
	if err != nil {
		return nil, err
	}
	store, err := notebook.NewStore(cfg.DataPath() + "/notebooks")
	if err != nil {
		return nil, err
	}

	runner, err := newProcessRunner(cfg)
	if err != nil {
		return nil, err
	}
	engine := notebook.NewEngine(runner, store, ws, tracker, notebook.EngineConfig{
		Python:      cfg.Notebook.Python,
		CellTimeout: cfg.CellTimeout(),
		Policy:      notebook.SnapshotPolicy(cfg.Notebook.SnapshotPolicy),
	})

	return &deps{
		cfg:     cfg,
		ws:      ws,
		tracker: tracker,
		runner:  runner,
		engine:  engine,
	}, nil
}

// newProcessRunner honors the configured bwrap path and fallback policy.
func newProcessRunner(cfg *config.Config) (procbox.Runner, error) {
	r := procbox.NewBwrapRunner()
	if cfg.Process.BwrapPath != "" {
		r.Path = cfg.Process.BwrapPath
	}
	if r.Available() {
		return r, nil
	}
	if !cfg.Process.AllowLocalFallback {
		return nil, fmt.Errorf("bubblewrap not available and local fallback is disabled")
	}
	return procbox.NewRunner(), nil
}
