// Package notify tells downstream caches that a dealer's products changed.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
	"github.com/JonMunkholm/dealerprice/internal/logging"
)

// DefaultChannel is the pub/sub channel replacement events go to.
const DefaultChannel = "dealer-products.invalidate"

// Publisher is the subset of a redis client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Event is the payload published after a dealer's products were replaced.
type Event struct {
	DealerID   int64     `json:"dealer_id"`
	ProviderID *int64    `json:"provider_id,omitempty"`
	Inserted   int64     `json:"inserted"`
	ReplacedAt time.Time `json:"replaced_at"`
}

// Redis publishes replacement events on a redis channel.
type Redis struct {
	client  Publisher
	channel string
	now     func() time.Time
}

// NewRedis creates a notifier publishing on channel (DefaultChannel when empty).
func NewRedis(client Publisher, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel, now: time.Now}
}

// Connect parses a redis URL and verifies the server answers.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// ProductsReplaced publishes one Event for the dealer.
func (r *Redis) ProductsReplaced(ctx context.Context, dealer catalog.Dealer, inserted int64) error {
	payload, err := json.Marshal(Event{
		DealerID:   dealer.ID,
		ProviderID: dealer.ProviderID,
		Inserted:   inserted,
		ReplacedAt: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", r.channel, err)
	}

	logging.FromContext(ctx).Debug("products replaced event published",
		"channel", r.channel,
		"dealer_id", dealer.ID,
		"receivers", receivers,
	)
	return nil
}

// Nop discards notifications.
type Nop struct{}

// ProductsReplaced does nothing.
func (Nop) ProductsReplaced(context.Context, catalog.Dealer, int64) error { return nil }
