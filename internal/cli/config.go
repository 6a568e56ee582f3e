package cli

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// ConfigCmd returns the config command
func ConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, _, err := app.ConfigPath()
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "# %s\n", path)
			fmt.Fprintf(out, "# ledger: %d entries / %s per channel, history: %s per store\n\n",
				app.Config.Ledger.MaxEntries,
				humanize.IBytes(uint64(app.Config.Ledger.MaxBytes)),
				humanize.IBytes(uint64(app.Config.Store.HistoryMaxBytes)),
			)
			return toml.NewEncoder(out).Encode(app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _, err := app.ConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	return cmd
}
