package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/request"
	"housekeeping/pkg/db"
)

const requestColumns = `id, type, status, priority, source, COALESCE(room_id, ''), description, assignee,
       COALESCE(linked_task_id, ''), resolution, cancel_reason, version,
       created_at, assigned_at, started_at, resolved_at, closed_at, cancelled_at, updated_at`

func scanRequest(row pgx.Row) (request.Request, error) {
	var r request.Request
	err := row.Scan(
		&r.ID, &r.Type, &r.Status, &r.Priority, &r.Source, &r.RoomID, &r.Description, &r.Assignee,
		&r.LinkedTaskID, &r.Resolution, &r.CancelReason, &r.Version,
		&r.CreatedAt, &r.AssignedAt, &r.StartedAt, &r.ResolvedAt, &r.ClosedAt, &r.CancelledAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) InsertRequest(ctx context.Context, r request.Request, h history.Entry) error {
	const q = `
INSERT INTO service_requests (id, type, status, priority, priority_rank, source, room_id, description, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q,
			r.ID, r.Type, r.Status, r.Priority, r.Priority.Rank(), r.Source, nullable(r.RoomID), r.Description,
			r.Version, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, h)
	})
	if db.IsUniqueViolation(err) {
		return apperr.Validation("request %s already exists", r.ID)
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (request.Request, error) {
	r, err := scanRequest(s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM service_requests WHERE id = $1`, id))
	if err != nil {
		return request.Request{}, notFound(err, "request %s not found", id)
	}
	return r, nil
}

func (s *Store) ListRequests(ctx context.Context, f request.Filter) ([]request.Request, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.Priority != "" {
		w.add("priority = ?", f.Priority)
	}
	if f.Assignee != "" {
		w.add("assignee = ?", f.Assignee)
	}
	if f.RoomID != "" {
		w.add("room_id = ?", f.RoomID)
	}
	if f.OpenOnly {
		w.raw("status NOT IN ('closed', 'cancelled')")
	}
	q := `SELECT ` + requestColumns + ` FROM service_requests ` + w.String() + ` ORDER BY priority_rank DESC, created_at, id`
	rows, err := s.db.Query(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []request.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRequest(ctx context.Context, r request.Request, expected int64, h history.Entry) error {
	const q = `
UPDATE service_requests
SET status = $3, assignee = $4, linked_task_id = $5, resolution = $6, cancel_reason = $7, version = $8,
    assigned_at = $9, started_at = $10, resolved_at = $11, closed_at = $12, cancelled_at = $13, updated_at = $14
WHERE id = $1 AND version = $2
`
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			r.ID, expected, r.Status, r.Assignee, nullable(r.LinkedTaskID), r.Resolution, r.CancelReason, r.Version,
			r.AssignedAt, r.StartedAt, r.ResolvedAt, r.ClosedAt, r.CancelledAt, r.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return checkVersion(ctx, tx, "service_requests", r.ID, "request")
		}
		return insertHistory(ctx, tx, h)
	})
}
