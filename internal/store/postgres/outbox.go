package postgres

import (
	"context"
	"time"

	"housekeeping/internal/apperr"
	"housekeeping/internal/outbox"
)

func (s *Store) PendingEvents(ctx context.Context, limit int) ([]outbox.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT id, kind, task_id, task_type, room_id, passed, created_at, attempts, last_error, delivered_at, dead
FROM outbox_events
WHERE delivered_at IS NULL AND NOT dead
ORDER BY seq
LIMIT $1
`
	rows, err := s.db.Query(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		if err := rows.Scan(
			&ev.ID, &ev.Kind, &ev.TaskID, &ev.TaskType, &ev.RoomID, &ev.Passed, &ev.CreatedAt,
			&ev.Attempts, &ev.LastError, &ev.DeliveredAt, &ev.Dead,
		); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events SET attempts = $2, delivered_at = $3, last_error = '' WHERE id = $1`,
		id, attempts, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("event %s not found", id)
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, id string, attempts int, lastErr string, dead bool) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE outbox_events SET attempts = $2, last_error = $3, dead = $4 WHERE id = $1`,
		id, attempts, lastErr, dead,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("event %s not found", id)
	}
	return nil
}
