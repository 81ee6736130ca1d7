package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-search-scraper/internal/models"
)

const maxListedProducts = 1000

const insertProductSQL = `
	INSERT INTO search_products (
		search_query, title, price, total_reviews,
		image_url, product_url, scrape_date
	) VALUES ($1, $2, $3, $4, $5, $6, $7)`

// EventWriter records the outbox event that accompanies a saved batch.
type EventWriter interface {
	PublishWithTx(ctx context.Context, tx pgx.Tx, query string, products []models.Product) error
}

// ProductStore writes scraped products to Postgres. Products and their
// outbox event are committed together.
type ProductStore struct {
	db     *DB
	events EventWriter
	logger *slog.Logger
}

func NewProductStore(db *DB, events EventWriter, logger *slog.Logger) *ProductStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductStore{
		db:     db,
		events: events,
		logger: logger.With("component", "product_store"),
	}
}

func (s *ProductStore) Save(ctx context.Context, query string, products []models.Product) error {
	if len(products) == 0 {
		return nil
	}

	err := s.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := insertProducts(ctx, tx, products); err != nil {
			return err
		}
		if s.events == nil {
			return nil
		}
		return s.events.PublishWithTx(ctx, tx, query, products)
	})
	if err != nil {
		return fmt.Errorf("failed to save products for %q: %w", query, err)
	}

	s.logger.Info("products stored", "query", query, "count", len(products))
	return nil
}

// Products returns the newest stored products, limited to query when it is
// not empty.
func (s *ProductStore) Products(ctx context.Context, query string) ([]models.Product, error) {
	rows, err := s.db.Query(ctx, `
		SELECT search_query, title, price::float8, total_reviews, image_url, product_url, scrape_date
		FROM search_products
		WHERE $1 = '' OR search_query = $1
		ORDER BY scrape_date DESC, id ASC
		LIMIT $2`, query, maxListedProducts)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.SearchQuery, &p.Title, &p.Price, &p.TotalReviews, &p.ImageURL, &p.ProductURL, &p.ScrapeDate); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return products, nil
}

func insertProducts(ctx context.Context, tx pgx.Tx, products []models.Product) error {
	results := tx.SendBatch(ctx, productBatch(products))
	defer results.Close()

	for i := range products {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert failed at row %d: %w", i, err)
		}
	}
	return nil
}

func productBatch(products []models.Product) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(insertProductSQL,
			p.SearchQuery,
			p.Title,
			p.Price,
			p.TotalReviews,
			p.ImageURL,
			p.ProductURL,
			p.ScrapeDate,
		)
	}
	return batch
}
