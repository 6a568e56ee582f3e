package cli

import (
	"github.com/spf13/cobra"
)

// ProjectCmd returns the project command
func ProjectCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
		Long:  "Create, list, update and delete the repositories tasks are tracked against",
	}

	createCmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			repo, _ := cmd.Flags().GetString("repo")
			_, err = c.ProjectAdapter(cmd.OutOrStdout()).Create(cmd.Context(), args[0], repo)
			return err
		},
	}
	createCmd.Flags().String("repo", "", "path to the project's git repository (required)")
	_ = createCmd.MarkFlagRequired("repo")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			_, err = c.ProjectAdapter(cmd.OutOrStdout()).List(cmd.Context())
			return err
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update [project-id]",
		Short: "Rename a project or move its repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			repo, _ := cmd.Flags().GetString("repo")
			return c.ProjectAdapter(cmd.OutOrStdout()).Update(cmd.Context(), args[0], name, repo)
		},
	}
	updateCmd.Flags().String("name", "", "new project name")
	updateCmd.Flags().String("repo", "", "new repository path")

	deleteCmd := &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project with its tasks and executions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Container()
			if err != nil {
				return err
			}
			return c.ProjectAdapter(cmd.OutOrStdout()).Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(createCmd, listCmd, updateCmd, deleteCmd)
	return cmd
}
