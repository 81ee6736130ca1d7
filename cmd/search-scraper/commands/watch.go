package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-search-scraper/internal/events"
)

var watchGroup string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Logs SEARCH_RESULTS_SCRAPED events read from the Redis stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		consumer := events.NewConsumer(client, events.ConsumerOptions{
			Stream: cfg.Redis.Stream,
			Group:  watchGroup,
		}, func(_ context.Context, id string, p *events.SearchResultsScrapedPayload) error {
			attrs := []any{"id", id, "query", p.Query, "products", p.ProductCount, "priced", p.PricedCount}
			if p.MinPrice != nil && p.MaxPrice != nil {
				attrs = append(attrs, "min_price", *p.MinPrice, "max_price", *p.MaxPrice)
			}
			log.Info("search results scraped", attrs...)
			return nil
		}, log)

		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchGroup, "group", events.DefaultGroup, "Redis consumer group name.")
	rootCmd.AddCommand(watchCmd)
}
