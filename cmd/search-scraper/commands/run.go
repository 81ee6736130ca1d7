package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/maltedev/amazon-search-scraper/internal/runner"
	"github.com/maltedev/amazon-search-scraper/internal/storage"
)

var runOpts struct {
	queriesFile string
	outputDir   string
	pages       int
	workers     int
}

var runCmd = &cobra.Command{
	Use:   "run [query...]",
	Short: "Scrapes every query from the queries file, or the queries given as arguments.",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		flags := cmd.Flags()
		if flags.Changed("queries") {
			cfg.Storage.QueriesFile = runOpts.queriesFile
		}
		if flags.Changed("output") {
			cfg.Storage.OutputDir = runOpts.outputDir
		}
		if flags.Changed("pages") {
			cfg.Scraper.MaxPages = runOpts.pages
		}
		if flags.Changed("workers") {
			cfg.Scraper.Workers = runOpts.workers
		}

		queries := args
		if len(queries) == 0 {
			queries, err = storage.ReadQueries(cfg.Storage.QueriesFile)
			if err != nil {
				return err
			}
		}
		if len(queries) == 0 {
			log.Warn("no queries to scrape", "file", cfg.Storage.QueriesFile)
			return nil
		}

		ctx := cmd.Context()

		var c cleanup
		defer func() {
			if cerr := c.run(); cerr != nil {
				log.Error("cleanup failed", "error", cerr)
			}
		}()

		s, err := newSearchScraper(cfg, log, &c)
		if err != nil {
			return err
		}
		sinks, _, err := newSinks(ctx, cfg, log, &c)
		if err != nil {
			return err
		}

		log.Info("starting scrape",
			"queries", len(queries),
			"workers", cfg.Scraper.Workers,
			"max_pages", cfg.Scraper.MaxPages,
			"transport", cfg.Scraper.Transport,
			"output", cfg.Storage.OutputDir,
			"database", cfg.Database.Enabled,
		)

		start := time.Now()
		results := runner.New(s, sinks, cfg.Scraper.Workers, log).Run(ctx, queries)
		runner.LogSummary(log, results)
		log.Info("elapsed", "duration", time.Since(start).Round(time.Millisecond))

		return ctx.Err()
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runOpts.queriesFile, "queries", "data/user_queries.json", "JSON array of search queries.")
	f.StringVar(&runOpts.outputDir, "output", "output", "Directory for per-query result files.")
	f.IntVar(&runOpts.pages, "pages", 20, "Maximum result pages per query.")
	f.IntVar(&runOpts.workers, "workers", 3, "Queries scraped concurrently.")
	rootCmd.AddCommand(runCmd)
}
