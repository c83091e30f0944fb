package postgres

import (
	"testing"

	"github.com/jackc/pgx/v5"

	"housekeeping/internal/apperr"
)

func TestWhere_NumbersPlaceholders(t *testing.T) {
	var w where
	if w.String() != "" {
		t.Fatalf("empty where: %q", w.String())
	}
	w.add("status = ?", "pending")
	w.raw("status IN ('pending', 'in_progress')")
	w.add("assignee = ?", "S1")

	want := "WHERE status = $1 AND status IN ('pending', 'in_progress') AND assignee = $2"
	if got := w.String(); got != want {
		t.Fatalf("where = %q, want %q", got, want)
	}
	if len(w.args) != 2 || w.args[1] != "S1" {
		t.Fatalf("args = %v", w.args)
	}
}

func TestNotFound_MapsNoRows(t *testing.T) {
	if err := notFound(pgx.ErrNoRows, "room %s not found", "r1"); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if nullable("") != nil || nullable("x") != "x" {
		t.Fatalf("nullable mapping broken")
	}
}
