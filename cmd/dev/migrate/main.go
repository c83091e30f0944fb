package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"housekeeping/pkg/config"
	"housekeeping/pkg/db"
)

func main() {
	down := pflag.Int("down", -1, "roll back n migrations instead of applying (0 rolls back everything)")
	pflag.Parse()

	cfg := config.Load()
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}

	if *down >= 0 {
		if err := db.MigrateDown(cfg.MigrationsPath, cfg, *down); err != nil {
			fmt.Fprintf(os.Stderr, "migrate down failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations rolled back")
		return
	}

	// This uses DIRECT_URL if set.
	if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}

	// Ensure the runtime connection can open too (uses DATABASE_URL if set).
	// DSNs are never printed.
	pool, err := db.Open(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "runtime db open failed: %v\n", err)
		os.Exit(1)
	}
	pool.Close()

	fmt.Println("migrations applied")
}
