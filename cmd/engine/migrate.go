package main

import (
	"context"
	"time"

	"devfeed/internal/database"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables or indexes for the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			// Opening a store creates its schema.
			store, err := database.NewStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close(ctx)
			log.Info().Str("store", store.Name()).Msg("schema up to date")
			return nil
		},
	}
}
