package syncq

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"stockledger/internal/store"
	"stockledger/internal/xid"
)

const drainBatch = 64

type Dispatcher struct {
	outbox   Outbox
	repo     store.Repository
	log      zerolog.Logger
	interval time.Duration
	wake     chan struct{}
	drainMu  sync.Mutex
	now      func() time.Time
}

func NewDispatcher(outbox Outbox, repo store.Repository, logger zerolog.Logger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Dispatcher{
		outbox:   outbox,
		repo:     repo,
		log:      logger.With().Str("component", "syncq").Logger(),
		interval: interval,
		wake:     make(chan struct{}, 1),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Enqueue records the change set in the outbox and signals the run loop. It
// never waits for the store.
func (d *Dispatcher) Enqueue(ctx context.Context, changes store.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	if changes.ID == "" {
		changes.ID = xid.New("cs")
	}
	if changes.CreatedAt.IsZero() {
		changes.CreatedAt = d.now()
	}
	if err := d.outbox.Append(ctx, changes); err != nil {
		return err
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the outbox whenever work is enqueued and on every tick, until ctx
// is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-ticker.C:
		}
		if _, err := d.Drain(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn().Err(err).Msg("store sync deferred")
		}
	}
}

// Drain applies pending change sets in order. It stops at the first failure so
// later writes never overtake an earlier one; the failed set stays pending.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	d.drainMu.Lock()
	defer d.drainMu.Unlock()

	applied := 0
	for {
		pending, err := d.outbox.Pending(ctx, drainBatch)
		if err != nil {
			return applied, err
		}
		if len(pending) == 0 {
			return applied, nil
		}
		for _, cs := range pending {
			if err := d.repo.Apply(ctx, cs); err != nil {
				return applied, err
			}
			if err := d.outbox.Ack(ctx, cs.ID); err != nil {
				return applied, err
			}
			applied++
			d.log.Debug().Str("change_set", cs.ID).Bool("sale", cs.Sale).Msg("change set persisted")
		}
	}
}

// Flush drains until the outbox is empty or ctx expires.
func (d *Dispatcher) Flush(ctx context.Context) error {
	applied, err := d.Drain(ctx)
	remaining, lenErr := d.outbox.Len(ctx)
	if lenErr != nil {
		remaining = -1
	}
	event := d.log.Info()
	if err != nil {
		event = d.log.Error().Err(err)
	}
	event.Int("applied", applied).Int("remaining", remaining).Msg("outbox flushed")
	return err
}

func (d *Dispatcher) Pending(ctx context.Context) (int, error) {
	return d.outbox.Len(ctx)
}
