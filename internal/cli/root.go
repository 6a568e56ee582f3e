// Package cli implements the kanband command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/kanband/internal/config"
	"github.com/example/kanband/internal/logging"
	"github.com/example/kanband/internal/version"
	"github.com/example/kanband/internal/wire"
)

// EnvConfig names an alternate config file.
const EnvConfig = "KANBAND_CONFIG"

// App carries what every command needs: the loaded configuration, the
// logger and, once a command asks for it, the container.
type App struct {
	configPath string
	logLevel   string

	Config config.Config
	Logger zerolog.Logger

	container *wire.Container
}

// Execute runs the kanband command line and releases whatever the command
// opened.
func Execute() error {
	app := &App{}
	err := NewRootCmd(app).Execute()
	return errors.Join(err, app.Close(context.Background()))
}

// NewRootCmd builds the kanband command tree around app.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "kanband",
		Short:   "kanband - task board backend for coding agents",
		Version: version.String(),
		Long: `kanband tracks projects and tasks, runs scripts and app-server coding agents
against them, and streams their output and every board change to live subscribers.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// init is what creates the file.
			return app.load(cmd.Name() == "init")
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default ~/.kanband/config.toml, env "+EnvConfig+")")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	rootCmd.AddCommand(InitCmd(app))
	rootCmd.AddCommand(ConfigCmd(app))
	rootCmd.AddCommand(ServeCmd(app))
	rootCmd.AddCommand(ProjectCmd(app))
	rootCmd.AddCommand(TaskCmd(app))
	rootCmd.AddCommand(ExecCmd(app))
	rootCmd.AddCommand(AgentCmd(app))
	rootCmd.AddCommand(OutboxCmd(app))

	return rootCmd
}

// ConfigPath returns the config file in effect and whether the user named
// it explicitly.
func (a *App) ConfigPath() (string, bool, error) {
	if a.configPath != "" {
		return a.configPath, true, nil
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env, true, nil
	}
	path, err := config.DefaultPath()
	return path, false, err
}

func (a *App) load(allowMissing bool) error {
	path, explicit, err := a.ConfigPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(path, allowMissing || !explicit)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	a.Config = cfg
	a.Logger = logging.New(cfg.Log, os.Stderr)
	return nil
}

// Container opens the database and builds the services on first use.
func (a *App) Container() (*wire.Container, error) {
	if a.container != nil {
		return a.container, nil
	}
	c, err := wire.New(a.Config, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kanband: %w", err)
	}
	a.container = c
	return c, nil
}

// Close releases the container if one was opened.
func (a *App) Close(ctx context.Context) error {
	if a.container == nil {
		return nil
	}
	err := a.container.Close(ctx)
	a.container = nil
	return err
}
