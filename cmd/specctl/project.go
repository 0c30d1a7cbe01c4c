package main

import (
	"time"

	"github.com/spf13/cobra"

	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/repository"
)

func newStaleCommand() *cobra.Command {
	var (
		status    string
		olderThan time.Duration
		page      int
		pageSize  int
	)

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List projects stuck in a status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			controller, cleanup, err := openController(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := controller.ListStale(cmd.Context(), entity.ProjectStatus(status), olderThan,
				repository.NewPagination(page, pageSize))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&status, "status", string(entity.ProjectStatusReview), "Project status")
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Minimum time spent in the status")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Page size")
	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Show a project's status and how long it has been there",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := openController(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			project, elapsed, err := controller.TimeInStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"project_id":        project.ID,
				"owner_id":          project.OwnerID,
				"status":            project.Status,
				"status_changed_at": project.StatusChangedAt,
				"time_in_status":    elapsed.Round(time.Second).String(),
				"version":           project.Version,
			})
		},
	}
}
