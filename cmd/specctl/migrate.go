package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"spec-forge-api/internal/infrastructure/persistence/postgres"
	"spec-forge-api/internal/wire"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configFrom(cmd)
			data, cleanup, err := wire.InitializeDataLayer(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("init data layer: %w", err)
			}
			defer cleanup()

			if data.Postgres == nil {
				return errors.New("migrate requires database.driver=postgres")
			}
			if err := data.Postgres.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"migrated": len(postgres.Models),
			})
		},
	}
}
