// Package notify delivers low-stock alerts raised by the ledger.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type LowStockAlert struct {
	ItemID     string    `json:"item_id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	LocationID string    `json:"location_id"`
	Quantity   int       `json:"quantity"`
	Threshold  int       `json:"threshold"`
	At         time.Time `json:"at"`
}

type Notifier interface {
	LowStock(ctx context.Context, alert LowStockAlert) error
}

type Nop struct{}

func (Nop) LowStock(context.Context, LowStockAlert) error { return nil }

type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger.With().Str("component", "notify").Logger()}
}

func (n *LogNotifier) LowStock(_ context.Context, alert LowStockAlert) error {
	n.log.Warn().
		Str("item_id", alert.ItemID).
		Str("sku", alert.SKU).
		Str("location_id", alert.LocationID).
		Int("quantity", alert.Quantity).
		Int("threshold", alert.Threshold).
		Msgf("low stock: %s", alert.Name)
	return nil
}

// RedisNotifier publishes alerts as JSON on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
}

func NewRedisNotifier(client *redis.Client, channel string) *RedisNotifier {
	if channel == "" {
		channel = "stockledger:low-stock"
	}
	return &RedisNotifier{client: client, channel: channel}
}

func (n *RedisNotifier) LowStock(ctx context.Context, alert LowStockAlert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.channel, payload).Err()
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) LowStock(ctx context.Context, alert LowStockAlert) error {
	var errs []error
	for _, n := range m {
		if err := n.LowStock(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
