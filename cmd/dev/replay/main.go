package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/ledger"
	"housekeeping/internal/lock"
	"housekeeping/internal/store/postgres"
	"housekeeping/pkg/config"
	"housekeeping/pkg/db"
	"housekeeping/pkg/logger"
)

// replay folds stored ledger logs offline and compares them with the cached
// quantities. With --repair it rewrites diverged caches from the log.
func main() {
	var (
		itemID = pflag.String("item", "", "replay a single item id (default: every item)")
		repair = pflag.Bool("repair", false, "rewrite diverged caches from the log")
	)
	pflag.Parse()

	cfg := config.Load()
	log, err := logger.New(cfg.LogLevel, "console", "housekeeping-replay")
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	defer conn.Close()

	eng := &ledger.Engine{
		Repo:  postgres.New(conn),
		Locks: lock.NewManager(cfg.LockTimeout),
		Log:   log,
	}

	var out any
	switch {
	case *itemID != "" && *repair:
		out, err = eng.Repair(ctx, *itemID, actor.System)
	case *itemID != "":
		out, err = eng.Verify(ctx, *itemID)
	case *repair:
		out, err = eng.VerifyAll(ctx, actor.System)
	default:
		out, err = verifyEach(ctx, eng)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		if apperr.Is(err, apperr.KindIntegrity) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

// verifyEach replays every item without writing.
func verifyEach(ctx context.Context, eng *ledger.Engine) ([]ledger.VerifyResult, error) {
	items, err := eng.ListItems(ctx, ledger.Filter{})
	if err != nil {
		return nil, err
	}
	var (
		results []ledger.VerifyResult
		first   error
	)
	for _, it := range items {
		res, err := eng.Verify(ctx, it.ID)
		if err != nil && !apperr.Is(err, apperr.KindIntegrity) {
			return results, err
		}
		if err != nil && first == nil {
			first = err
		}
		results = append(results, res)
	}
	return results, first
}
