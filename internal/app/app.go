// Package app assembles the engines over one store and wires the room
// consumer, the outbox dispatcher and the dashboard refresher together.
package app

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"housekeeping/internal/ledger"
	"housekeeping/internal/lock"
	"housekeeping/internal/metrics"
	"housekeeping/internal/outbox"
	"housekeeping/internal/projection"
	"housekeeping/internal/request"
	"housekeeping/internal/room"
	"housekeeping/internal/seed"
	"housekeeping/internal/task"
	"housekeeping/internal/webhook"
	"housekeeping/pkg/config"
)

// Store is every record set a backend must hold.
type Store interface {
	room.Repository
	task.Repository
	request.Repository
	ledger.Repository
	outbox.Repository
	webhook.Claims
	FindRoomByNumber(ctx context.Context, number string) (room.Room, error)
}

type App struct {
	Rooms      *room.Engine
	Tasks      *task.Engine
	Requests   *request.Engine
	Ledger     *ledger.Engine
	Dispatcher *outbox.Dispatcher
	Refresher  *projection.Refresher
	Webhook    webhook.Handler
	Seeder     seed.Loader
}

type Options struct {
	Cfg     config.Config
	Store   Store
	Redis   *redis.Client
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func New(o Options) *App {
	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}
	locks := lock.NewManager(o.Cfg.LockTimeout)

	rooms := &room.Engine{Repo: o.Store, Locks: locks, Log: log.Named("rooms"), Metrics: o.Metrics}

	dispatcher := &outbox.Dispatcher{
		Repo:     o.Store,
		Consumer: rooms,
		Log:      log.Named("outbox"),
		Metrics:  o.Metrics,
	}

	tasks := &task.Engine{
		Repo:            o.Store,
		Rooms:           rooms,
		Locks:           locks,
		Events:          dispatcher,
		DispatchTimeout: o.Cfg.DispatchTimeout,
		Log:             log.Named("tasks"),
		Metrics:         o.Metrics,
	}
	rooms.Tasks = tasks

	requests := &request.Engine{
		Repo:    o.Store,
		Rooms:   rooms,
		Tasks:   tasks,
		Locks:   locks,
		Log:     log.Named("requests"),
		Metrics: o.Metrics,
	}
	led := &ledger.Engine{Repo: o.Store, Locks: locks, Log: log.Named("ledger"), Metrics: o.Metrics}

	var cache projection.KV = projection.NewMemoryKV()
	if o.Redis != nil {
		dispatcher.Publisher = outbox.RedisStreamPublisher{Client: o.Redis, Stream: o.Cfg.OutboxStream}
		cache = projection.NewRedisKV(o.Redis)
	}

	refresher := &projection.Refresher{
		Builder: &projection.Builder{
			Rooms:    rooms,
			Tasks:    tasks,
			Requests: requests,
			Items:    led,
		},
		Ledger:  led,
		Cache:   cache,
		TTL:     ttlFor(o.Cfg.ProjectionRefreshInterval),
		Log:     log.Named("projection"),
		Metrics: o.Metrics,
	}

	return &App{
		Rooms:      rooms,
		Tasks:      tasks,
		Requests:   requests,
		Ledger:     led,
		Dispatcher: dispatcher,
		Refresher:  refresher,
		Webhook: webhook.Handler{
			Secret:   o.Cfg.PMSWebhookSecret,
			Claims:   o.Store,
			Lookup:   o.Store,
			Rooms:    rooms,
			Tasks:    tasks,
			Requests: requests,
			Log:      log.Named("webhook"),
		},
		Seeder: seed.Loader{
			RoomStore: o.Store,
			ItemStore: o.Store,
			Rooms:     rooms,
			Items:     led,
			Log:       log.Named("seed"),
		},
	}
}

// Run drives the outbox relay and the dashboard refresher until ctx is done.
func (a *App) Run(ctx context.Context, cfg config.Config) {
	done := make(chan struct{}, 2)
	go func() {
		a.Dispatcher.Run(ctx, cfg.RelayInterval)
		done <- struct{}{}
	}()
	go func() {
		a.Refresher.Run(ctx, cfg.ProjectionRefreshInterval)
		done <- struct{}{}
	}()
	<-done
	<-done
}

// ttlFor keeps a snapshot alive for a few missed refreshes.
func ttlFor(interval time.Duration) time.Duration {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return 4 * interval
}
