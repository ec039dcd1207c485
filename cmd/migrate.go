package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koopa0/docpipe/db"
	"github.com/koopa0/docpipe/internal/config"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

func runMigrate() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return err
	}

	printf("Schema is up to date.")
	return nil
}
