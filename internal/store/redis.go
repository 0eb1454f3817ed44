package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/quantlab-io/tradecost/internal/sim"
)

const (
	// ResultsChannel carries every completed simulation as JSON
	ResultsChannel = "tradecost.results"

	latestKeyPrefix = "tradecost:latest:"
	batchKeyPrefix  = "tradecost:batch:"

	defaultBatchTTL = time.Hour
)

// Publisher pushes simulation output to Redis for live consumers
type Publisher struct {
	client   redis.Cmdable
	batchTTL time.Duration
}

// NewPublisher connects to Redis at addr
func NewPublisher(addr string) *Publisher {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &Publisher{client: client, batchTTL: defaultBatchTTL}
}

// NewPublisherWithClient wraps an existing client, primarily for tests
func NewPublisherWithClient(client redis.Cmdable) *Publisher {
	return &Publisher{client: client, batchTTL: defaultBatchTTL}
}

// Ping verifies the connection
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store: redis ping: %w", err)
	}
	return nil
}

// PublishResult stores the latest result per symbol and broadcasts it on
// the results channel.
func (p *Publisher) PublishResult(ctx context.Context, res sim.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("store: marshal result: %w", err)
	}

	if err := p.client.Set(ctx, latestKeyPrefix+res.Symbol, payload, 0).Err(); err != nil {
		return fmt.Errorf("store: set latest result: %w", err)
	}
	if err := p.client.Publish(ctx, ResultsChannel, payload).Err(); err != nil {
		return fmt.Errorf("store: publish result: %w", err)
	}
	return nil
}

// PublishBatch stores a completed batch under its id with a TTL so
// abandoned batches expire on their own.
func (p *Publisher) PublishBatch(ctx context.Context, br *sim.BatchResult) error {
	payload, err := json.Marshal(br)
	if err != nil {
		return fmt.Errorf("store: marshal batch: %w", err)
	}
	if err := p.client.Set(ctx, batchKeyPrefix+br.ID, payload, p.batchTTL).Err(); err != nil {
		return fmt.Errorf("store: set batch: %w", err)
	}
	return nil
}

// LatestResult reads back the most recent result for a symbol
func (p *Publisher) LatestResult(ctx context.Context, symbol string) (*sim.Result, error) {
	payload, err := p.client.Get(ctx, latestKeyPrefix+symbol).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get latest result: %w", err)
	}
	var res sim.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("store: decode latest result: %w", err)
	}
	return &res, nil
}
