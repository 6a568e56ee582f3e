package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/kanband/internal/ports/primary"
)

// AgentCmd returns the agent command
func AgentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run coding agent sessions",
	}

	runCmd := &cobra.Command{
		Use:   "run --task <task-id> --prompt <text>",
		Short: "Run an app-server agent on a task",
		Long: `Launch the configured app-server agent in the task's project repository,
send it the prompt and print its normalized conversation until it completes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			taskID, _ := cmd.Flags().GetString("task")
			prompt, _ := cmd.Flags().GetString("prompt")
			model, _ := cmd.Flags().GetString("model")
			dir, _ := cmd.Flags().GetString("dir")

			exec, err := c.Executions.StartAgent(cmd.Context(), primary.StartAgentRequest{
				TaskID: taskID,
				Prompt: prompt,
				Model:  model,
				Dir:    dir,
			})
			if err != nil {
				return fmt.Errorf("failed to start agent: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ Agent %s started\n", exec.ID)
			return superviseFromCLI(cmd.Context(), c, out, exec, func(ctx context.Context) error {
				return c.StreamAdapter(out).FollowNormalized(ctx, exec.StoreKey, 0)
			})
		},
	}
	runCmd.Flags().StringP("task", "t", "", "task ID (required)")
	runCmd.Flags().StringP("prompt", "m", "", "prompt to send (required)")
	runCmd.Flags().String("model", "", "model override")
	runCmd.Flags().String("dir", "", "working directory (default: project repository)")
	_ = runCmd.MarkFlagRequired("task")
	_ = runCmd.MarkFlagRequired("prompt")

	cmd.AddCommand(runCmd)
	return cmd
}
