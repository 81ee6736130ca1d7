package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/maltedev/amazon-search-scraper/internal/api"
	"github.com/maltedev/amazon-search-scraper/internal/jobs"
	"github.com/maltedev/amazon-search-scraper/internal/queue"
	"github.com/maltedev/amazon-search-scraper/internal/runner"
	"github.com/maltedev/amazon-search-scraper/internal/storage"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the HTTP API with a background job worker and, when enabled, the outbox relay.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var c cleanup
		defer func() {
			if err := c.run(); err != nil {
				log.Error("cleanup failed", "error", err)
			}
		}()

		s, err := newSearchScraper(cfg, log, &c)
		if err != nil {
			return err
		}
		sinks, db, err := newSinks(ctx, cfg, log, &c)
		if err != nil {
			return err
		}

		var products api.ProductSource = storage.NewJSONStore(cfg.Storage.OutputDir)
		if db != nil {
			products = newProductStore(db, cfg, log)
		}

		q := queue.NewInMemoryQueue()
		c.add(q.Close)
		manager := jobs.NewManager(q, runner.New(s, sinks, cfg.Scraper.Workers, log), log)

		g, gctx := errgroup.WithContext(ctx)

		var outbox api.OutboxMonitor
		if cfg.Redis.Enabled {
			relay, err := newRelay(ctx, db, cfg, log, &c)
			if err != nil {
				return err
			}
			outbox = relay
			g.Go(func() error {
				if err := relay.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return fmt.Errorf("relay stopped: %w", err)
				}
				return nil
			})
		}

		g.Go(func() error {
			manager.StartWorker(gctx)
			return nil
		})

		server := &http.Server{
			Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:      api.NewRouter(api.NewHandlers(products, manager, outbox, log)),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.WriteTimeout,
		}

		g.Go(func() error {
			log.Info("server starting", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down server...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer shutdownCancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		})

		err = g.Wait()
		log.Info("server stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP listen port.")
	rootCmd.AddCommand(serveCmd)
}
