package commands

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
)

var errRelayDisabled = errors.New("relay needs DB_ENABLED=true and REDIS_ENABLED=true")

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Forwards outbox events from Postgres to the Redis stream until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Enabled || !cfg.Redis.Enabled {
			return errRelayDisabled
		}

		ctx := cmd.Context()

		var c cleanup
		defer func() {
			if err := c.run(); err != nil {
				log.Error("cleanup failed", "error", err)
			}
		}()

		db, err := openDatabase(ctx, cfg, &c)
		if err != nil {
			return err
		}
		relay, err := newRelay(ctx, db, cfg, log, &c)
		if err != nil {
			return err
		}

		log.Info("relay starting", "stream", cfg.Redis.Stream, "interval", cfg.Redis.RelayInterval)
		if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		log.Info("relay stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(relayCmd)
}
