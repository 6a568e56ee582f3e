package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/kanband/internal/ports/primary"
)

// TaskCmd returns the task command
func TaskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Create, list, show, update and delete the tasks of a project",
	}

	createCmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			projectID, _ := cmd.Flags().GetString("project")
			description, _ := cmd.Flags().GetString("description")
			parent, _ := cmd.Flags().GetString("parent")

			_, err = c.TaskAdapter(cmd.OutOrStdout()).Create(cmd.Context(), primary.CreateTaskRequest{
				ProjectID:    projectID,
				Title:        args[0],
				Description:  description,
				ParentTaskID: parent,
			})
			return err
		},
	}
	createCmd.Flags().StringP("project", "p", "", "project ID (required)")
	createCmd.Flags().StringP("description", "d", "", "task description")
	createCmd.Flags().String("parent", "", "parent task ID")
	_ = createCmd.MarkFlagRequired("project")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			projectID, _ := cmd.Flags().GetString("project")
			status, _ := cmd.Flags().GetString("status")

			_, err = c.TaskAdapter(cmd.OutOrStdout()).List(cmd.Context(), primary.TaskFilters{
				ProjectID: projectID,
				Status:    status,
			})
			return err
		},
	}
	listCmd.Flags().StringP("project", "p", "", "filter by project")
	listCmd.Flags().StringP("status", "s", "", "filter by status (todo, inprogress, inreview, done, cancelled)")

	showCmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task and its executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			_, err = c.TaskAdapter(cmd.OutOrStdout()).Show(cmd.Context(), args[0])
			return err
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update [task-id]",
		Short: "Update a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}

			req := primary.UpdateTaskRequest{TaskID: args[0]}
			if cmd.Flags().Changed("title") {
				title, _ := cmd.Flags().GetString("title")
				req.Title = &title
			}
			if cmd.Flags().Changed("description") {
				description, _ := cmd.Flags().GetString("description")
				req.Description = &description
			}
			if cmd.Flags().Changed("parent") {
				parent, _ := cmd.Flags().GetString("parent")
				req.ParentTaskID = &parent
			}
			status, _ := cmd.Flags().GetString("status")

			return c.TaskAdapter(cmd.OutOrStdout()).Update(cmd.Context(), req, status)
		},
	}
	updateCmd.Flags().String("title", "", "new title")
	updateCmd.Flags().StringP("description", "d", "", "new description")
	updateCmd.Flags().String("parent", "", "new parent task ID (empty to detach)")
	updateCmd.Flags().StringP("status", "s", "", "new status")

	deleteCmd := &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			return c.TaskAdapter(cmd.OutOrStdout()).Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(createCmd, listCmd, showCmd, updateCmd, deleteCmd)
	return cmd
}
