// Package postgres persists every record set in Postgres. Each repository
// write runs in one db.WithTx transaction and guards the entity version in
// its UPDATE so a stale writer gets apperr Busy instead of a lost update.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/ledger"
	"housekeeping/internal/outbox"
	"housekeeping/internal/request"
	"housekeeping/internal/room"
	"housekeeping/internal/task"
	"housekeeping/pkg/db"
)

var (
	_ room.Repository    = (*Store)(nil)
	_ task.Repository    = (*Store)(nil)
	_ request.Repository = (*Store)(nil)
	_ ledger.Repository  = (*Store)(nil)
	_ outbox.Repository  = (*Store)(nil)
)

type Store struct {
	db *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// notFound maps pgx.ErrNoRows onto apperr NotFound.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(format, args...)
	}
	return err
}

func insertHistory(ctx context.Context, q db.Querier, h history.Entry) error {
	if h.ID == "" {
		return nil
	}
	const stmt = `
INSERT INTO history (id, entity_type, entity_id, action, from_status, to_status, actor, reason, data, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	var data any
	if len(h.Data) > 0 {
		data = h.Data
	}
	_, err := q.Exec(ctx, stmt,
		h.ID, string(h.EntityType), h.EntityID, h.Action, h.From, h.To, h.Actor, h.Reason, data, h.OccurredAt,
	)
	return err
}

func (s *Store) ListHistory(ctx context.Context, entity history.EntityType, id string) ([]history.Entry, error) {
	const q = `
SELECT id, entity_type, entity_id, action, from_status, to_status, actor, reason, data, occurred_at
FROM history
WHERE entity_type = $1 AND entity_id = $2
ORDER BY seq
`
	rows, err := s.db.Query(ctx, q, string(entity), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []history.Entry
	for rows.Next() {
		var (
			h  history.Entry
			et string
		)
		if err := rows.Scan(&h.ID, &et, &h.EntityID, &h.Action, &h.From, &h.To, &h.Actor, &h.Reason, &h.Data, &h.OccurredAt); err != nil {
			return nil, err
		}
		h.EntityType = history.EntityType(et)
		out = append(out, h)
	}
	return out, rows.Err()
}

// checkVersion turns a zero-row guarded UPDATE into NotFound or Busy.
func checkVersion(ctx context.Context, q db.Querier, table, id, label string) error {
	var exists bool
	if err := q.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("%s %s not found", label, id)
	}
	return apperr.Busy("%s %s changed concurrently", label, id)
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.clauses, " AND ")
}

// ClaimWebhookEvent records a PMS event id and reports whether it was new.
func (s *Store) ClaimWebhookEvent(ctx context.Context, source, eventID string, at time.Time) (bool, error) {
	const q = `
INSERT INTO webhook_events (source, event_id, received_at)
VALUES ($1, $2, $3)
ON CONFLICT (source, event_id) DO NOTHING
`
	tag, err := s.db.Exec(ctx, q, source, eventID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ReleaseWebhookEvent forgets a claim so a redelivery is processed again.
func (s *Store) ReleaseWebhookEvent(ctx context.Context, source, eventID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM webhook_events WHERE source = $1 AND event_id = $2`, source, eventID)
	return err
}
