package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/maltedev/amazon-search-scraper/internal/models"
	"github.com/maltedev/amazon-search-scraper/internal/parser"
)

const DefaultMaxPages = 20

// PageFetcher returns the raw body of a search results page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

type Options struct {
	BaseURL  string
	MaxPages int
}

// SearchScraper walks the result pages of a query and collects their listings.
type SearchScraper struct {
	fetcher  PageFetcher
	parser   parser.Parser
	baseURL  string
	maxPages int
	logger   *slog.Logger
}

func NewSearchScraper(f PageFetcher, p parser.Parser, opts Options, logger *slog.Logger) *SearchScraper {
	if opts.MaxPages < 1 {
		opts.MaxPages = DefaultMaxPages
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SearchScraper{
		fetcher:  f,
		parser:   p,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		maxPages: opts.MaxPages,
		logger:   logger.With("component", "search_scraper"),
	}
}

// ScrapeQuery requests pages 1..MaxPages in order and concatenates their
// products. Pages that fail to load or parse are skipped. Empty pages do not
// stop the walk; only cancellation of ctx does.
func (s *SearchScraper) ScrapeQuery(ctx context.Context, query string) []models.Product {
	return s.ScrapePages(ctx, query, s.maxPages)
}

// ScrapePages is ScrapeQuery with an explicit page cap; pages < 1 means MaxPages.
func (s *SearchScraper) ScrapePages(ctx context.Context, query string, pages int) []models.Product {
	if pages < 1 {
		pages = s.maxPages
	}

	start := time.Now()
	products := make([]models.Product, 0)

	s.logger.Info("scraping query", "query", query, "max_pages", pages)

	for page := 1; page <= pages; page++ {
		if ctx.Err() != nil {
			s.logger.Warn("query cancelled", "query", query, "page", page, "error", ctx.Err())
			break
		}

		pageURL := SearchURL(s.baseURL, query, page)

		body, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			s.logger.Warn("skipping page", "query", query, "page", page, "error", err)
			continue
		}

		found, err := s.parser.Parse(bytes.NewReader(body), query)
		if errors.Is(err, parser.ErrBotChallenge) {
			s.logger.Warn("robot check served, skipping page", "query", query, "page", page)
			continue
		}
		if err != nil {
			s.logger.Warn("failed to parse page", "query", query, "page", page, "error", err)
			continue
		}

		products = append(products, found...)
		s.logger.Info("page scraped", "query", query, "page", page, "found", len(found), "total", len(products))
	}

	s.logger.Info("query finished",
		"query", query,
		"products", len(products),
		"priced", models.CountPriced(products),
		"duration", time.Since(start))

	return products
}

// SearchURL builds the results URL for one page of query.
func SearchURL(baseURL, query string, page int) string {
	return fmt.Sprintf("%s/s?k=%s&page=%d", strings.TrimRight(baseURL, "/"), url.QueryEscape(query), page)
}
