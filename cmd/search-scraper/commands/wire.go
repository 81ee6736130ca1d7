package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-search-scraper/internal/browser"
	"github.com/maltedev/amazon-search-scraper/internal/config"
	"github.com/maltedev/amazon-search-scraper/internal/database"
	"github.com/maltedev/amazon-search-scraper/internal/events"
	"github.com/maltedev/amazon-search-scraper/internal/fetcher"
	"github.com/maltedev/amazon-search-scraper/internal/parser"
	"github.com/maltedev/amazon-search-scraper/internal/ratelimit"
	"github.com/maltedev/amazon-search-scraper/internal/runner"
	"github.com/maltedev/amazon-search-scraper/internal/scraper"
	"github.com/maltedev/amazon-search-scraper/internal/storage"
)

// cleanup releases resources in reverse acquisition order.
type cleanup []func() error

func (c *cleanup) add(fn func() error) {
	*c = append(*c, fn)
}

func (c cleanup) run() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		errs = append(errs, c[i]())
	}
	return errors.Join(errs...)
}

func newTransport(cfg *config.Config, c *cleanup) (fetcher.Transport, error) {
	if cfg.Scraper.Transport != config.TransportBrowser {
		return fetcher.NewHTTPTransport(cfg.Scraper.RequestTimeout), nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.Timeout = cfg.Browser.Timeout

	b, err := browser.New(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	c.add(b.Close)
	return b, nil
}

func newSearchScraper(cfg *config.Config, logger *slog.Logger, c *cleanup) (*scraper.SearchScraper, error) {
	t, err := newTransport(cfg, c)
	if err != nil {
		return nil, err
	}

	f := fetcher.New(t, fetcher.Options{
		MaxRetries: cfg.Scraper.MaxRetries,
		UserAgents: cfg.Scraper.UserAgents,
		Limiter: ratelimit.Chain{
			ratelimit.NewBudget(cfg.Scraper.MaxRPS),
			ratelimit.NewPacer(cfg.Scraper.RequestDelay, cfg.Scraper.Jitter),
		},
		Logger: logger,
	})

	p, err := parser.NewSearchParser(cfg.Scraper.BaseURL, logger)
	if err != nil {
		return nil, err
	}

	return scraper.NewSearchScraper(f, p, scraper.Options{
		BaseURL:  cfg.Scraper.BaseURL,
		MaxPages: cfg.Scraper.MaxPages,
	}, logger), nil
}

func openDatabase(ctx context.Context, cfg *config.Config, c *cleanup) (*database.DB, error) {
	db, err := database.New(ctx, database.Config{
		DSN:      cfg.Database.DSN(),
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	c.add(func() error {
		db.Close()
		return nil
	})

	if err := db.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// newProductStore persists products with an outbox event in one transaction.
func newProductStore(db *database.DB, cfg *config.Config, logger *slog.Logger) *database.ProductStore {
	publisher := events.NewPublisher(database.NewOutboxRepository(db), cfg.Redis.Stream, logger)
	return database.NewProductStore(db, publisher, logger)
}

// newSinks always writes JSON files and adds Postgres when enabled.
func newSinks(ctx context.Context, cfg *config.Config, logger *slog.Logger, c *cleanup) ([]runner.Sink, *database.DB, error) {
	sinks := []runner.Sink{storage.NewJSONStore(cfg.Storage.OutputDir)}
	if !cfg.Database.Enabled {
		return sinks, nil, nil
	}

	db, err := openDatabase(ctx, cfg, c)
	if err != nil {
		return nil, nil, err
	}
	return append(sinks, newProductStore(db, cfg, logger)), db, nil
}

func newRelay(ctx context.Context, db *database.DB, cfg *config.Config, logger *slog.Logger, c *cleanup) (*database.Relay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.add(client.Close)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return database.NewRelay(database.NewOutboxRepository(db), client, logger, database.RelayConfig{
		PollInterval: cfg.Redis.RelayInterval,
		BatchSize:    cfg.Redis.RelayBatchSize,
	}), nil
}
