package projection

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/ledger"
	"housekeeping/internal/metrics"
	"housekeeping/pkg/codec"
)

const DefaultKey = "housekeeping:dashboard"

type LedgerVerifier interface {
	VerifyAll(ctx context.Context, by actor.Actor) (ledger.VerifyReport, error)
}

// Refresher rebuilds the dashboard into the cache on a fixed interval and
// runs the ledger repair pass before each rebuild.
type Refresher struct {
	Builder *Builder
	Ledger  LedgerVerifier
	Cache   KV
	Key     string
	// TTL bounds how long a snapshot outlives a stalled refresher.
	TTL     time.Duration
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

// Refresh verifies the ledger, rebuilds the dashboard and stores it.
func (r *Refresher) Refresh(ctx context.Context) (Dashboard, error) {
	log := r.logger()
	if r.Ledger != nil {
		rep, err := r.Ledger.VerifyAll(ctx, actor.System)
		if err != nil {
			log.Warn("ledger verify pass failed", zap.Error(err))
		} else if len(rep.Repaired) > 0 || len(rep.Corrupt) > 0 {
			log.Warn("ledger verify pass found divergence",
				zap.Int("checked", rep.Checked),
				zap.Strings("repaired", rep.Repaired),
				zap.Strings("corrupt", rep.Corrupt),
			)
		}
	}

	start := time.Now()
	d, err := r.Builder.Build(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	r.Metrics.ProjectionBuilt(time.Since(start))

	b, err := codec.Marshal(d)
	if err != nil {
		return Dashboard{}, err
	}
	if err := r.Cache.Set(ctx, r.key(), string(b), r.TTL); err != nil {
		log.Warn("dashboard cache write failed", zap.Error(err))
	}
	return d, nil
}

// Cached returns the stored snapshot, rebuilding it on a miss or an
// undecodable entry.
func (r *Refresher) Cached(ctx context.Context) (Dashboard, error) {
	s, err := r.Cache.Get(ctx, r.key())
	switch {
	case errors.Is(err, ErrMiss):
		return r.Refresh(ctx)
	case err != nil:
		r.logger().Warn("dashboard cache read failed", zap.Error(err))
		return r.Refresh(ctx)
	}
	var d Dashboard
	if err := codec.Unmarshal([]byte(s), &d); err != nil {
		r.logger().Warn("dashboard cache entry undecodable", zap.Error(err))
		return r.Refresh(ctx)
	}
	return d, nil
}

// Run refreshes once immediately and then every interval until ctx ends.
func (r *Refresher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger().Warn("dashboard refresh failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (r *Refresher) key() string {
	if r.Key == "" {
		return DefaultKey
	}
	return r.Key
}

func (r *Refresher) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}
