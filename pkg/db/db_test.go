package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"housekeeping/pkg/config"
)

func TestConnStrings_PreferExplicitURLs(t *testing.T) {
	cfg := config.Config{DB: config.DBConfig{Host: "db", Port: "5432", Name: "hk", User: "u", Password: "p"}}
	if got := runtimeConnString(cfg); got != "postgres://u:p@db:5432/hk?sslmode=disable" {
		t.Fatalf("dsn = %q", got)
	}
	cfg.DatabaseURL = "postgres://pooler/hk?pgbouncer=true"
	cfg.DirectURL = "postgres://direct/hk"
	if got := runtimeConnString(cfg); got != cfg.DatabaseURL {
		t.Fatalf("runtime = %q", got)
	}
	if got := migrationConnString(cfg); got != cfg.DirectURL {
		t.Fatalf("migration = %q", got)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert room: %w", &pgconn.PgError{Code: "23505"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("serialization failure is not a unique violation")
	}
}
