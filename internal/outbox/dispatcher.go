package outbox

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"housekeeping/internal/apperr"
	"housekeeping/internal/metrics"
)

const (
	defaultBackoff   = 25 * time.Millisecond
	maxBackoff       = time.Second
	relayBatchSize   = 100
	relayEventBudget = 5 * time.Second
)

type Dispatcher struct {
	Repo      Repository
	Consumer  Consumer
	Publisher Publisher
	Log       *zap.Logger
	Metrics   *metrics.Metrics

	// Backoff is the first wait between Busy retries; it doubles up to a second.
	Backoff time.Duration
	Now     func() time.Time
}

// Deliver hands ev to the consumer, retrying Busy results until the
// consumer succeeds or ctx ends. Other errors are not retryable and mark
// the event dead. An event left pending by a cancelled ctx is picked up
// again by Run.
func (d *Dispatcher) Deliver(ctx context.Context, ev Event) error {
	log := d.logger().With(zap.String("event_id", ev.ID), zap.String("kind", string(ev.Kind)), zap.String("room_id", ev.RoomID))
	wait := d.Backoff
	if wait <= 0 {
		wait = defaultBackoff
	}
	attempts := ev.Attempts

	for {
		attempts++
		err := d.Consumer.Handle(ctx, ev)
		if err == nil {
			if mErr := d.Repo.MarkDelivered(context.WithoutCancel(ctx), ev.ID, attempts, d.now()); mErr != nil {
				log.Warn("outbox mark delivered failed", zap.Error(mErr))
			}
			d.Metrics.OutboxDelivery(string(ev.Kind), "delivered")
			d.publish(ctx, ev, log)
			return nil
		}

		if errors.Is(err, context.Canceled) {
			d.markPending(ctx, ev.ID, attempts, err, log)
			return err
		}
		if !apperr.Is(err, apperr.KindBusy) {
			if mErr := d.Repo.MarkFailed(context.WithoutCancel(ctx), ev.ID, attempts, err.Error(), true); mErr != nil {
				log.Warn("outbox mark failed failed", zap.Error(mErr))
			}
			d.Metrics.OutboxDelivery(string(ev.Kind), "dead")
			log.Error("outbox event rejected by consumer", zap.Error(err), zap.Int("attempts", attempts))
			return err
		}

		d.Metrics.OutboxDelivery(string(ev.Kind), "busy")
		select {
		case <-ctx.Done():
			d.markPending(ctx, ev.ID, attempts, err, log)
			return err
		case <-time.After(wait):
		}
		if wait *= 2; wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

// Run redelivers pending events every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Relay(ctx); err != nil && ctx.Err() == nil {
				d.logger().Warn("outbox relay failed", zap.Error(err))
			}
		}
	}
}

// Relay makes one pass over pending events and returns how many were delivered.
func (d *Dispatcher) Relay(ctx context.Context) (int, error) {
	events, err := d.Repo.PendingEvents(ctx, relayBatchSize)
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, ev := range events {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		evCtx, cancel := context.WithTimeout(ctx, relayEventBudget)
		if err := d.Deliver(evCtx, ev); err == nil {
			delivered++
		}
		cancel()
	}
	return delivered, nil
}

func (d *Dispatcher) markPending(ctx context.Context, id string, attempts int, cause error, log *zap.Logger) {
	if err := d.Repo.MarkFailed(context.WithoutCancel(ctx), id, attempts, cause.Error(), false); err != nil {
		log.Warn("outbox mark pending failed", zap.Error(err))
	}
	log.Warn("outbox event left pending for relay", zap.Error(cause), zap.Int("attempts", attempts))
}

func (d *Dispatcher) publish(ctx context.Context, ev Event, log *zap.Logger) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.Publish(ctx, ev); err != nil {
		log.Warn("outbox publish failed", zap.Error(err))
	}
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}
