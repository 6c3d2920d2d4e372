package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/dealerprice/internal/catalog"
)

type fakePublisher struct {
	channel string
	message []byte
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	return redis.NewIntResult(1, nil)
}

func TestRedis_ProductsReplaced(t *testing.T) {
	pub := &fakePublisher{}
	n := NewRedis(pub, "")
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	providerID := int64(9)
	err := n.ProductsReplaced(context.Background(), catalog.Dealer{ID: 3, ProviderID: &providerID}, 42)
	if err != nil {
		t.Fatalf("ProductsReplaced() error = %v", err)
	}

	if pub.channel != DefaultChannel {
		t.Errorf("channel = %q, want %q", pub.channel, DefaultChannel)
	}
	var ev Event
	if err := json.Unmarshal(pub.message, &ev); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if ev.DealerID != 3 || ev.ProviderID == nil || *ev.ProviderID != 9 || ev.Inserted != 42 {
		t.Errorf("event = %+v", ev)
	}
	if !ev.ReplacedAt.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("ReplacedAt = %v", ev.ReplacedAt)
	}
}

func TestRedis_PublishError(t *testing.T) {
	boom := errors.New("connection refused")
	n := NewRedis(&fakePublisher{err: boom}, "custom")

	err := n.ProductsReplaced(context.Background(), catalog.Dealer{ID: 1}, 1)
	if !errors.Is(err, boom) {
		t.Errorf("ProductsReplaced() error = %v, want %v", err, boom)
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).ProductsReplaced(context.Background(), catalog.Dealer{}, 0); err != nil {
		t.Errorf("Nop.ProductsReplaced() error = %v", err)
	}
}
