package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"housekeeping/internal/app"
	"housekeeping/internal/httpapi"
	"housekeeping/internal/metrics"
	"housekeeping/internal/seed"
	"housekeeping/internal/store/memory"
	"housekeeping/internal/store/postgres"
	"housekeeping/pkg/config"
	"housekeeping/pkg/db"
	"housekeeping/pkg/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, "housekeeping-api")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store app.Store
	switch cfg.StoreBackend {
	case "postgres":
		if cfg.MigrationsPath != "" {
			if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
				log.Fatal("migrate", zap.Error(err))
			}
		}
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			log.Fatal("db open", zap.Error(err))
		}
		defer conn.Close()
		store = postgres.New(conn)
	case "memory", "":
		store = memory.New()
	default:
		log.Fatal("unknown store backend", zap.String("backend", cfg.StoreBackend))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping", zap.Error(err))
		}
	}

	m := metrics.New()
	a := app.New(app.Options{Cfg: cfg, Store: store, Redis: rdb, Log: log, Metrics: m})

	if cfg.SeedPath != "" {
		catalog, err := seed.LoadFile(cfg.SeedPath)
		if err != nil {
			log.Fatal("seed catalog", zap.Error(err))
		}
		res, err := a.Seeder.Apply(ctx, catalog)
		if err != nil {
			log.Fatal("seed apply", zap.Error(err))
		}
		log.Info("seed applied",
			zap.Int("rooms_created", res.RoomsCreated),
			zap.Int("items_created", res.ItemsCreated),
			zap.Int("skipped", res.Skipped),
		)
	}

	go a.Run(ctx, cfg)

	router := httpapi.NewRouter(httpapi.Dependencies{
		Cfg:     cfg,
		App:     a,
		Log:     log,
		Metrics: m,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
}
