package models

import (
	"errors"
	"strings"
	"time"
)

const (
	// MinPrice and MaxPrice are exclusive bounds for an accepted price.
	MinPrice = 0.0
	MaxPrice = 100000.0
)

var ErrEmptyTitle = errors.New("product title is required")

// Product is one listing scraped from a search results page.
// Optional fields are nil when the page did not yield a usable value.
type Product struct {
	Title        string    `json:"title"`
	Price        *float64  `json:"price"`
	TotalReviews *int      `json:"total_reviews"`
	ImageURL     *string   `json:"image_url"`
	SearchQuery  string    `json:"search_query"`
	ProductURL   *string   `json:"product_url"`
	ScrapeDate   time.Time `json:"scrape_date"`
}

// Listing holds the raw extracted fields of a listing card before it becomes a Product.
type Listing struct {
	Title        string
	Price        *float64
	TotalReviews *int
	ImageURL     *string
	ProductURL   *string
}

// NewProduct builds a Product stamped with the current time.
// A price outside the accepted range is dropped rather than stored.
func NewProduct(l Listing, query string) (Product, error) {
	title := strings.TrimSpace(l.Title)
	if title == "" {
		return Product{}, ErrEmptyTitle
	}

	price := l.Price
	if price != nil && !ValidPrice(*price) {
		price = nil
	}

	reviews := l.TotalReviews
	if reviews != nil && *reviews < 0 {
		reviews = nil
	}

	return Product{
		Title:        title,
		Price:        price,
		TotalReviews: reviews,
		ImageURL:     l.ImageURL,
		SearchQuery:  query,
		ProductURL:   l.ProductURL,
		ScrapeDate:   time.Now(),
	}, nil
}

// ValidPrice reports whether p lies strictly inside (MinPrice, MaxPrice).
func ValidPrice(p float64) bool {
	return p > MinPrice && p < MaxPrice
}

func (p Product) HasPrice() bool {
	return p.Price != nil
}

// ShortTitle returns at most n runes of the title, for log lines.
func (p Product) ShortTitle(n int) string {
	return Truncate(p.Title, n)
}

func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// ScrapeSummary describes the outcome of scraping one query.
type ScrapeSummary struct {
	Query    string        `json:"query"`
	Products int           `json:"products"`
	Priced   int           `json:"priced"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CountPriced returns how many products carry a price.
func CountPriced(products []Product) int {
	n := 0
	for _, p := range products {
		if p.HasPrice() {
			n++
		}
	}
	return n
}
