package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukydev/fleet-maintenance/internal/db"
)

func newIndexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create MongoDB indexes",
		Long:  `Create the unique code indexes and the lookup indexes used by the API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			client, err := db.ConnectMongo(ctx, cfg.Mongo.URI)
			if err != nil {
				return fmt.Errorf("failed to connect to MongoDB: %w", err)
			}
			defer func() {
				if err := client.Disconnect(context.Background()); err != nil {
					log.WithError(err).Warn("MongoDB disconnect error")
				}
			}()

			if err := db.EnsureIndexes(ctx, client.Database(cfg.Mongo.Database)); err != nil {
				return err
			}
			log.WithField("database", cfg.Mongo.Database).Info("Indexes created")
			return nil
		},
	}
}
