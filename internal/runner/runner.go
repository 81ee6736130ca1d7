package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/amazon-search-scraper/internal/models"
	"github.com/maltedev/amazon-search-scraper/internal/scraper"
)

const DefaultWorkers = 3

// Sink persists the products collected for one query.
type Sink interface {
	Save(ctx context.Context, query string, products []models.Product) error
}

// QueryResult is the outcome of one query. Err is set when the query was
// cancelled before it started or a sink rejected its products.
type QueryResult struct {
	Query    string
	Products int
	Priced   int
	Err      error
	Duration time.Duration
}

func (r QueryResult) Summary() models.ScrapeSummary {
	s := models.ScrapeSummary{
		Query:    r.Query,
		Products: r.Products,
		Priced:   r.Priced,
		Success:  r.Err == nil,
		Duration: r.Duration,
	}
	if r.Err != nil {
		s.Error = r.Err.Error()
	}
	return s
}

// Runner scrapes queries on a bounded pool of workers and hands each
// query's products to every sink.
type Runner struct {
	scraper scraper.Scraper
	sinks   []Sink
	workers int
	logger  *slog.Logger
}

func New(s scraper.Scraper, sinks []Sink, workers int, logger *slog.Logger) *Runner {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		scraper: s,
		sinks:   sinks,
		workers: workers,
		logger:  logger.With("component", "runner"),
	}
}

// Run processes queries concurrently and returns their results in input order.
func (r *Runner) Run(ctx context.Context, queries []string) []QueryResult {
	results := make([]QueryResult, len(queries))

	var g errgroup.Group
	g.SetLimit(r.workers)

	for i, q := range queries {
		g.Go(func() error {
			results[i] = r.RunQuery(ctx, q, 0)
			return nil
		})
	}

	// Workers never return errors; failures live in each QueryResult.
	_ = g.Wait()

	return results
}

// RunQuery scrapes one query with the given page cap (0 keeps the scraper's
// default) and saves a non-empty result to every sink.
func (r *Runner) RunQuery(ctx context.Context, query string, pages int) QueryResult {
	start := time.Now()
	result := QueryResult{Query: query}

	if err := ctx.Err(); err != nil {
		result.Err = fmt.Errorf("query not started: %w", err)
		return result
	}

	products := r.scraper.ScrapePages(ctx, query, pages)
	result.Products = len(products)
	result.Priced = models.CountPriced(products)

	if len(products) == 0 {
		r.logger.Warn("no products found, nothing saved", "query", query)
		result.Duration = time.Since(start)
		return result
	}

	// Pages already fetched are kept even when the run is interrupted.
	saveCtx := ctx
	if ctx.Err() != nil {
		r.logger.Warn("run interrupted, saving partial results", "query", query, "products", result.Products)
		saveCtx = context.WithoutCancel(ctx)
	}

	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Save(saveCtx, query, products); err != nil {
			r.logger.Error("failed to save products", "query", query, "sink", fmt.Sprintf("%T", sink), "error", err)
			errs = append(errs, err)
		}
	}
	result.Err = errors.Join(errs...)
	result.Duration = time.Since(start)

	r.logger.Info("query saved", "query", query, "products", result.Products, "priced", result.Priced, "duration", result.Duration)

	return result
}

// LogSummary reports the run outcome and returns the success and failure counts.
func LogSummary(logger *slog.Logger, results []QueryResult) (succeeded, failed int) {
	total := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			logger.Error("query failed", "query", res.Query, "error", res.Err)
			continue
		}
		succeeded++
		total += res.Products
	}

	logger.Info("scrape run finished",
		"queries", len(results),
		"succeeded", succeeded,
		"failed", failed,
		"products", total)

	return succeeded, failed
}
