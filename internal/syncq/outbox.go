// Package syncq persists committed ledger change sets to the durable store in
// the background. Change sets are written to an outbox first and removed only
// after the store accepts them.
package syncq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"

	"stockledger/internal/store"
)

type Outbox interface {
	Append(ctx context.Context, changes store.ChangeSet) error
	// Pending returns up to limit change sets, oldest first.
	Pending(ctx context.Context, limit int) ([]store.ChangeSet, error)
	Ack(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

type MemoryOutbox struct {
	mu    sync.Mutex
	queue []store.ChangeSet
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

func (o *MemoryOutbox) Append(_ context.Context, changes store.ChangeSet) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, changes)
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]store.ChangeSet, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.queue)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]store.ChangeSet, n)
	copy(out, o.queue[:n])
	return out, nil
}

func (o *MemoryOutbox) Ack(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, cs := range o.queue {
		if cs.ID == id {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (o *MemoryOutbox) Len(_ context.Context) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue), nil
}

// RedisOutbox keeps change set ids in a list (order) and payloads in a hash,
// so pending writes survive a restart of this process.
type RedisOutbox struct {
	client  *redis.Client
	listKey string
	hashKey string
}

func NewRedisOutbox(client *redis.Client, key string) *RedisOutbox {
	if key == "" {
		key = "stockledger:outbox"
	}
	return &RedisOutbox{client: client, listKey: key + ":order", hashKey: key + ":payload"}
}

func (o *RedisOutbox) Append(ctx context.Context, changes store.ChangeSet) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return err
	}
	_, err = o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, o.hashKey, changes.ID, payload)
		pipe.RPush(ctx, o.listKey, changes.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("outbox append %s: %w", changes.ID, err)
	}
	return nil
}

func (o *RedisOutbox) Pending(ctx context.Context, limit int) ([]store.ChangeSet, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := o.client.LRange(ctx, o.listKey, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("outbox pending: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	payloads, err := o.client.HMGet(ctx, o.hashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("outbox pending: %w", err)
	}

	out := make([]store.ChangeSet, 0, len(ids))
	for i, raw := range payloads {
		text, ok := raw.(string)
		if !ok {
			// Payload vanished; drop the dangling id.
			o.client.LRem(ctx, o.listKey, 1, ids[i])
			continue
		}
		var cs store.ChangeSet
		if err := json.Unmarshal([]byte(text), &cs); err != nil {
			return nil, fmt.Errorf("outbox decode %s: %w", ids[i], err)
		}
		out = append(out, cs)
	}
	return out, nil
}

func (o *RedisOutbox) Ack(ctx context.Context, id string) error {
	_, err := o.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, o.listKey, 1, id)
		pipe.HDel(ctx, o.hashKey, id)
		return nil
	})
	return err
}

func (o *RedisOutbox) Len(ctx context.Context) (int, error) {
	n, err := o.client.LLen(ctx, o.listKey).Result()
	return int(n), err
}
