package parser

import (
	"io"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

// Parser turns one search-results document into products tagged with query.
type Parser interface {
	Parse(r io.Reader, query string) ([]models.Product, error)
}
