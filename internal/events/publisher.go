package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/amazon-search-scraper/internal/database"
	"github.com/maltedev/amazon-search-scraper/internal/models"
)

type EventType string

const (
	// EventTypeSearchResultsScraped is published once per saved query result.
	EventTypeSearchResultsScraped EventType = "SEARCH_RESULTS_SCRAPED"

	aggregateType = "search_query"
	defaultSource = "scraper"
)

type SearchResultsScrapedPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	Query        string    `json:"query"`
	ProductCount int       `json:"product_count"`
	PricedCount  int       `json:"priced_count"`
	MinPrice     *float64  `json:"min_price,omitempty"`
	MaxPrice     *float64  `json:"max_price,omitempty"`
	Source       string    `json:"source"`
}

// NewSearchResultsPayload summarises products for query.
func NewSearchResultsPayload(query string, products []models.Product) *SearchResultsScrapedPayload {
	payload := &SearchResultsScrapedPayload{
		Query:        query,
		ProductCount: len(products),
	}

	for _, p := range products {
		if p.Price == nil {
			continue
		}
		payload.PricedCount++
		price := *p.Price
		if payload.MinPrice == nil || price < *payload.MinPrice {
			payload.MinPrice = &price
		}
		if payload.MaxPrice == nil || price > *payload.MaxPrice {
			payload.MaxPrice = &price
		}
	}

	return payload
}

type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher writes events to the transactional outbox; the relay forwards them.
type Publisher struct {
	outbox OutboxWriter
	stream string
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		outbox: outbox,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishWithTx records a SEARCH_RESULTS_SCRAPED event inside tx.
func (p *Publisher) PublishWithTx(ctx context.Context, tx pgx.Tx, query string, products []models.Product) error {
	payload := NewSearchResultsPayload(query, products)
	p.fillDefaults(payload)

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	event := &database.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   query,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"query", query,
		"outbox_id", event.ID)

	return nil
}

func (p *Publisher) fillDefaults(payload *SearchResultsScrapedPayload) {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypeSearchResultsScraped)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}
	if payload.Source == "" {
		payload.Source = defaultSource
	}
}
