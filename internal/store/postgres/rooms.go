package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/room"
	"housekeeping/pkg/db"
)

const roomColumns = `id, number, floor, status, COALESCE(current_task_id, ''), prior_status,
       inspection_required, version, created_at, updated_at`

func scanRoom(row pgx.Row) (room.Room, error) {
	var r room.Room
	err := row.Scan(
		&r.ID, &r.Number, &r.Floor, &r.Status, &r.CurrentTaskID, &r.PriorStatus,
		&r.InspectionRequired, &r.Version, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (s *Store) InsertRoom(ctx context.Context, r room.Room, h history.Entry) error {
	const q = `
INSERT INTO rooms (id, number, floor, status, current_task_id, prior_status, inspection_required, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q,
			r.ID, r.Number, r.Floor, r.Status, nullable(r.CurrentTaskID), r.PriorStatus,
			r.InspectionRequired, r.Version, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, h)
	})
	if db.IsUniqueViolation(err) {
		return apperr.Validation("room number %s is taken", r.Number)
	}
	return err
}

func (s *Store) GetRoom(ctx context.Context, id string) (room.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		return room.Room{}, notFound(err, "room %s not found", id)
	}
	return r, nil
}

func (s *Store) FindRoomByNumber(ctx context.Context, number string) (room.Room, error) {
	r, err := scanRoom(s.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE number = $1`, number))
	if err != nil {
		return room.Room{}, notFound(err, "room %s not found", number)
	}
	return r, nil
}

func (s *Store) ListRooms(ctx context.Context, f room.Filter) ([]room.Room, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Floor != "" {
		w.add("floor = ?", f.Floor)
	}
	rows, err := s.db.Query(ctx, `SELECT `+roomColumns+` FROM rooms `+w.String()+` ORDER BY number`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []room.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRoom(ctx context.Context, r room.Room, expected int64, h history.Entry) error {
	const q = `
UPDATE rooms
SET status = $3, current_task_id = $4, prior_status = $5, inspection_required = $6,
    version = $7, updated_at = $8
WHERE id = $1 AND version = $2
`
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			r.ID, expected, r.Status, nullable(r.CurrentTaskID), r.PriorStatus, r.InspectionRequired,
			r.Version, r.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return checkVersion(ctx, tx, "rooms", r.ID, "room")
		}
		return insertHistory(ctx, tx, h)
	})
}
