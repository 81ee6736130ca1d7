package scraper

import (
	"context"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

// Scraper collects every listing a query yields.
type Scraper interface {
	ScrapeQuery(ctx context.Context, query string) []models.Product
	ScrapePages(ctx context.Context, query string, pages int) []models.Product
}

var _ Scraper = (*SearchScraper)(nil)
