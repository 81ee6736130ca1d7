package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/amazon-search-scraper/internal/database"
)

const (
	DefaultGroup    = "search-results-consumers"
	defaultConsumer = "consumer-1"
	defaultBlock    = 5 * time.Second
	readErrorPause  = time.Second
)

// StreamClient is the subset of the redis client used for consumer groups.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler receives each decoded SEARCH_RESULTS_SCRAPED event. A returned error
// leaves the message unacknowledged.
type Handler func(ctx context.Context, messageID string, payload *SearchResultsScrapedPayload) error

type ConsumerOptions struct {
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
}

// Consumer reads relayed search events from a Redis stream consumer group.
type Consumer struct {
	client  StreamClient
	opts    ConsumerOptions
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamClient, opts ConsumerOptions, handler Handler, logger *slog.Logger) *Consumer {
	if opts.Stream == "" {
		opts.Stream = database.DefaultStream
	}
	if opts.Group == "" {
		opts.Group = DefaultGroup
	}
	if opts.Consumer == "" {
		opts.Consumer = defaultConsumer
	}
	if opts.Block <= 0 {
		opts.Block = defaultBlock
	}
	if opts.Count <= 0 {
		opts.Count = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client:  client,
		opts:    opts,
		handler: handler,
		logger:  logger.With("component", "stream_consumer"),
	}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.opts.Stream, c.opts.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consumer started", "stream", c.opts.Stream, "group", c.opts.Group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.opts.Group,
			Consumer: c.opts.Consumer,
			Streams:  []string{c.opts.Stream, ">"},
			Count:    c.opts.Count,
			Block:    c.opts.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readErrorPause):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.processMessage(ctx, msg)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) {
	payload, err := DecodeMessage(msg)
	switch {
	case errors.Is(err, errOtherEvent):
	case err != nil:
		c.logger.Error("failed to decode message", "id", msg.ID, "error", err)
		return
	default:
		if err := c.handler(ctx, msg.ID, payload); err != nil {
			c.logger.Error("failed to process message", "id", msg.ID, "error", err)
			return
		}
	}

	if err := c.client.XAck(ctx, c.opts.Stream, c.opts.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

var errOtherEvent = errors.New("not a search results event")

// DecodeMessage extracts the search payload from a relayed stream entry.
func DecodeMessage(msg redis.XMessage) (*SearchResultsScrapedPayload, error) {
	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeSearchResultsScraped) {
		return nil, errOtherEvent
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("missing data in message %s", msg.ID)
	}

	var envelope struct {
		Payload SearchResultsScrapedPayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse data: %w", err)
	}
	if envelope.Payload.Query == "" {
		return nil, fmt.Errorf("missing query in message %s", msg.ID)
	}
	return &envelope.Payload, nil
}
