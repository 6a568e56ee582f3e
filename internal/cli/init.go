package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/example/kanband/internal/config"
)

// InitCmd returns the init command
func InitCmd(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config and create the database",
		Long: `Write a default config file (~/.kanband/config.toml unless --config is given)
and create the database it names with the required schema.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, _, err := app.ConfigPath()
			if err != nil {
				return err
			}

			if _, err := os.Stat(path); err == nil && !force {
				fmt.Fprintf(out, "Config already exists at %s (use --force to overwrite)\n", path)
			} else {
				// The database lives next to the config it was created with.
				cfg := config.Default()
				cfg.Database.Path = filepath.Join(filepath.Dir(path), "kanband.db")
				if err := config.Save(path, cfg); err != nil {
					return err
				}
				app.Config = cfg
				fmt.Fprintf(out, "✓ Wrote config to %s\n", path)
			}

			if _, err := app.Container(); err != nil {
				return err
			}
			fmt.Fprintf(out, "✓ Database ready at %s\n", app.Config.Database.Path)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  kanband project create my-app --repo ~/src/my-app")
			fmt.Fprintln(out, "  kanband serve")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
