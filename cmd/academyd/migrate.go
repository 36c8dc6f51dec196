package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/upb/academy-hub/repositories/postgres"
	"go.uber.org/zap"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer logger.Sync()

			factory, err := postgres.NewRepositoryFactory(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer factory.Close()

			if err := factory.GetDB().InitSchema(cmd.Context()); err != nil {
				return err
			}

			logger.Info("schema is up to date", zap.String("database", cfg.Database.LogString()))
			return nil
		},
	}
}
