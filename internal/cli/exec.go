package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/kanband/internal/core/execution"
	"github.com/example/kanband/internal/ports/primary"
	"github.com/example/kanband/internal/wire"
)

// ExecCmd returns the exec command
func ExecCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Run and inspect script executions",
	}

	runCmd := &cobra.Command{
		Use:   "run --task <task-id> -- <command> [args...]",
		Short: "Run a script for a task and print its output",
		Long: `Spawn a command in the task's project repository (or --dir), record it as an
execution process and print its stdout and stderr until it exits. Interrupting
kanband stops the command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			taskID, _ := cmd.Flags().GetString("task")
			reason, _ := cmd.Flags().GetString("reason")
			dir, _ := cmd.Flags().GetString("dir")

			exec, err := c.Executions.StartScript(cmd.Context(), primary.StartScriptRequest{
				TaskID:    taskID,
				RunReason: reason,
				Command:   args[0],
				Args:      args[1:],
				Dir:       dir,
			})
			if err != nil {
				return fmt.Errorf("failed to start execution: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Execution %s started (%s)\n", exec.ID, exec.RunReason)
			return superviseFromCLI(cmd.Context(), c, out, exec, func(ctx context.Context) error {
				return c.StreamAdapter(out).FollowRaw(ctx, exec.StoreKey, 0)
			})
		},
	}
	runCmd.Flags().StringP("task", "t", "", "task ID (required)")
	runCmd.Flags().String("reason", execution.RunReasonSetupScript, "run reason (setupscript, cleanupscript, devserver)")
	runCmd.Flags().String("dir", "", "working directory (default: project repository)")
	_ = runCmd.MarkFlagRequired("task")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List a task's executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			taskID, _ := cmd.Flags().GetString("task")
			_, err = c.TaskAdapter(cmd.OutOrStdout()).Show(cmd.Context(), taskID)
			return err
		},
	}
	listCmd.Flags().StringP("task", "t", "", "task ID (required)")
	_ = listCmd.MarkFlagRequired("task")

	cmd.AddCommand(runCmd, listCmd)
	return cmd
}

// superviseFromCLI prints an execution until it finishes, stopping it on
// interrupt, and reports a failed or killed execution as an error.
func superviseFromCLI(parent context.Context, c *wire.Container, out io.Writer, exec *primary.Execution, follow func(context.Context) error) error {
	sigCtx, stop := interruptContext(parent)
	defer stop()

	finished := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			fmt.Fprintf(out, "\nStopping execution %s...\n", exec.ID)
			if err := c.Executions.Stop(context.Background(), exec.ID); err != nil {
				c.Logger.Warn().Err(err).Str("execution", exec.ID).Msg("failed to stop execution")
			}
		case <-finished:
		}
	}()

	// The stream ends with the execution, so it is not tied to sigCtx.
	followErr := follow(context.Background())
	final, err := c.Executions.Wait(context.Background(), exec.ID)
	close(finished)
	if err != nil {
		return err
	}
	if followErr != nil {
		return followErr
	}

	exit := "-"
	if final.ExitCode != nil {
		exit = fmt.Sprint(*final.ExitCode)
	}
	if final.Status != execution.StatusCompleted {
		return fmt.Errorf("execution %s %s (exit %s)", final.ID, final.Status, exit)
	}
	fmt.Fprintf(out, "✓ Execution %s completed (exit %s)\n", final.ID, exit)
	return nil
}
