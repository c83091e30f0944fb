package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/outbox"
	"housekeeping/internal/task"
	"housekeeping/pkg/db"
)

const taskColumns = `id, type, status, priority, room_id, assignee, created_by,
       COALESCE(parent_task_id, ''), COALESCE(request_id, ''), failure_reason,
       inspection_passed, inspection_note, version,
       created_at, assigned_at, started_at, completed_at, inspected_at, failed_at, updated_at`

func scanTask(row pgx.Row) (task.Task, error) {
	var t task.Task
	err := row.Scan(
		&t.ID, &t.Type, &t.Status, &t.Priority, &t.RoomID, &t.Assignee, &t.CreatedBy,
		&t.ParentTaskID, &t.RequestID, &t.FailureReason,
		&t.InspectionPassed, &t.InspectionNote, &t.Version,
		&t.CreatedAt, &t.AssignedAt, &t.StartedAt, &t.CompletedAt, &t.InspectedAt, &t.FailedAt, &t.UpdatedAt,
	)
	return t, err
}

func insertTask(ctx context.Context, q db.Querier, t task.Task) error {
	const stmt = `
INSERT INTO tasks (id, type, status, priority, priority_rank, room_id, assignee, created_by,
                   parent_task_id, request_id, failure_reason, inspection_passed, inspection_note, version,
                   created_at, assigned_at, started_at, completed_at, inspected_at, failed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
`
	_, err := q.Exec(ctx, stmt,
		t.ID, t.Type, t.Status, t.Priority, t.Priority.Rank(), t.RoomID, t.Assignee, t.CreatedBy,
		nullable(t.ParentTaskID), nullable(t.RequestID), t.FailureReason, t.InspectionPassed, t.InspectionNote, t.Version,
		t.CreatedAt, t.AssignedAt, t.StartedAt, t.CompletedAt, t.InspectedAt, t.FailedAt, t.UpdatedAt,
	)
	return err
}

func insertEvent(ctx context.Context, q db.Querier, ev outbox.Event) error {
	const stmt = `
INSERT INTO outbox_events (id, kind, task_id, task_type, room_id, passed, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`
	_, err := q.Exec(ctx, stmt, ev.ID, ev.Kind, ev.TaskID, ev.TaskType, ev.RoomID, ev.Passed, ev.CreatedAt)
	return err
}

func (s *Store) InsertTask(ctx context.Context, t task.Task, h history.Entry) error {
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := insertTask(ctx, tx, t); err != nil {
			return err
		}
		return insertHistory(ctx, tx, h)
	})
	if db.IsUniqueViolation(err) {
		return apperr.Validation("task %s already exists", t.ID)
	}
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	t, err := scanTask(s.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return task.Task{}, notFound(err, "task %s not found", id)
	}
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, f task.Filter) ([]task.Task, error) {
	var w where
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Assignee != "" {
		w.add("assignee = ?", f.Assignee)
	}
	if f.Priority != "" {
		w.add("priority = ?", f.Priority)
	}
	if f.RoomID != "" {
		w.add("room_id = ?", f.RoomID)
	}
	if f.Type != "" {
		w.add("type = ?", f.Type)
	}
	if f.ActiveOnly {
		w.raw("status IN ('pending', 'in_progress')")
	}
	q := `SELECT ` + taskColumns + ` FROM tasks ` + w.String() + ` ORDER BY priority_rank DESC, created_at, id`
	rows, err := s.db.Query(ctx, q, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ApplyTaskChange writes the transition, its history, its outbox events and
// any spawned task in one transaction.
func (s *Store) ApplyTaskChange(ctx context.Context, c task.Change) error {
	const q = `
UPDATE tasks
SET status = $3, priority = $4, priority_rank = $5, assignee = $6, failure_reason = $7,
    inspection_passed = $8, inspection_note = $9, version = $10,
    assigned_at = $11, started_at = $12, completed_at = $13, inspected_at = $14, failed_at = $15, updated_at = $16
WHERE id = $1 AND version = $2
`
	t := c.Task
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q,
			t.ID, c.Expected, t.Status, t.Priority, t.Priority.Rank(), t.Assignee, t.FailureReason,
			t.InspectionPassed, t.InspectionNote, t.Version,
			t.AssignedAt, t.StartedAt, t.CompletedAt, t.InspectedAt, t.FailedAt, t.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return checkVersion(ctx, tx, "tasks", t.ID, "task")
		}
		if err := insertHistory(ctx, tx, c.History); err != nil {
			return err
		}
		if c.Spawned != nil {
			if err := insertTask(ctx, tx, *c.Spawned); err != nil {
				return err
			}
			if err := insertHistory(ctx, tx, c.SpawnedHistory); err != nil {
				return err
			}
		}
		for _, ev := range c.Events {
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}
		return nil
	})
}
