package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/example/kanband/internal/ports/primary"
)

// OutboxCmd returns the outbox command
func OutboxCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and repair the event outbox",
		Long:  "List outbox rows, re-queue parked rows and prune published ones",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}

			var state string
			for _, s := range []string{primary.OutboxStatePending, primary.OutboxStateParked, primary.OutboxStatePublished} {
				if set, _ := cmd.Flags().GetBool(s); set {
					if state != "" {
						return fmt.Errorf("--%s and --%s are mutually exclusive", state, s)
					}
					state = s
				}
			}
			limit, _ := cmd.Flags().GetInt("limit")

			_, err = c.OutboxAdapter(cmd.OutOrStdout()).List(cmd.Context(), state, limit)
			return err
		},
	}
	listCmd.Flags().Bool(primary.OutboxStatePending, false, "only rows waiting to be published")
	listCmd.Flags().Bool(primary.OutboxStateParked, false, "only rows the dispatcher gave up on")
	listCmd.Flags().Bool(primary.OutboxStatePublished, false, "only published rows")
	listCmd.Flags().IntP("limit", "n", 50, "maximum rows to show")

	retryCmd := &cobra.Command{
		Use:   "retry [row-id]",
		Short: "Re-queue a parked or failing row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid row id %q", args[0])
			}
			c, err := app.Container()
			if err != nil {
				return err
			}
			return c.OutboxAdapter(cmd.OutOrStdout()).Retry(cmd.Context(), id)
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete published rows older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			return c.OutboxAdapter(cmd.OutOrStdout()).Prune(cmd.Context(), days)
		},
	}
	pruneCmd.Flags().Int("days", 0, "retention in days (default: outbox.retention_days)")

	cmd.AddCommand(listCmd, retryCmd, pruneCmd)
	return cmd
}
