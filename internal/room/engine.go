package room

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/lock"
	"housekeeping/internal/metrics"
)

type Engine struct {
	Repo    Repository
	Locks   *lock.Manager
	Tasks   TaskChecker
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type CreateInput struct {
	Number string `json:"number"`
	Floor  string `json:"floor"`
	Status string `json:"status,omitempty"`
}

func (e *Engine) Create(ctx context.Context, in CreateInput, by actor.Actor) (Room, error) {
	number := strings.TrimSpace(in.Number)
	if number == "" {
		return Room{}, apperr.Validation("room number is required")
	}
	status := StatusVacant
	if in.Status != "" {
		s, err := ParseStatus(in.Status)
		if err != nil {
			return Room{}, apperr.Validation("%v", err)
		}
		if s == StatusCleaning {
			return Room{}, apperr.Validation("a room cannot be created in cleaning")
		}
		status = s
	}

	now := e.now()
	r := Room{
		ID:        uuid.NewString(),
		Number:    number,
		Floor:     strings.TrimSpace(in.Floor),
		Status:    status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h := history.New(history.EntityRoom, r.ID, history.ActionCreated, by.String(), now)
	h.To = string(status)
	if err := ctx.Err(); err != nil {
		return Room{}, err
	}
	if err := e.Repo.InsertRoom(ctx, r, h); err != nil {
		return Room{}, err
	}
	return r, nil
}

func (e *Engine) Get(ctx context.Context, id string) (Room, error) {
	return e.Repo.GetRoom(ctx, id)
}

// GetRoom lets the engine stand in for a Repository reader.
func (e *Engine) GetRoom(ctx context.Context, id string) (Room, error) {
	return e.Repo.GetRoom(ctx, id)
}

func (e *Engine) List(ctx context.Context, f Filter) ([]Room, error) {
	return e.Repo.ListRooms(ctx, f)
}

func (e *Engine) History(ctx context.Context, id string) ([]history.Entry, error) {
	if _, err := e.Repo.GetRoom(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, history.EntityRoom, id)
}

type UpdateStatusInput struct {
	Status string `json:"status"`
	TaskID string `json:"taskId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// UpdateStatus applies a direct status command. A command that does not fit
// the room's current status fails with InvalidRoomTransition and is never
// coerced; the caller retries with fresh state.
func (e *Engine) UpdateStatus(ctx context.Context, id string, in UpdateStatusInput, by actor.Actor) (Room, error) {
	to, err := ParseStatus(in.Status)
	if err != nil {
		return Room{}, apperr.Validation("%v", err)
	}

	var out Room
	err = e.Locks.Do(ctx, lock.Key("room", id), func() error {
		r, err := e.Repo.GetRoom(ctx, id)
		if err != nil {
			return err
		}
		from := r.Status
		if from == to {
			return apperr.InvalidRoomTransition("room %s is already %s", r.Number, to)
		}
		if !CanTransition(from, to) {
			return apperr.InvalidRoomTransition("room %s cannot move from %s to %s", r.Number, from, to)
		}
		if from == StatusOutOfOrder && !by.CanOverride() {
			return apperr.Forbidden("releasing room %s from out_of_order requires a supervisor", r.Number)
		}

		action := history.ActionStatusChanged
		if from == StatusOutOfOrder {
			action = history.ActionSupervisorOverride
		}

		switch to {
		case StatusCleaning:
			if in.TaskID == "" {
				return apperr.InvalidRoomTransition("room %s needs an active task to enter cleaning", r.Number)
			}
			active, err := e.Tasks.IsActiveTaskFor(ctx, in.TaskID, r.ID)
			if err != nil {
				return err
			}
			if !active {
				return apperr.InvalidRoomTransition("task %s is not an active task for room %s", in.TaskID, r.Number)
			}
			r.PriorStatus = from
			r.CurrentTaskID = in.TaskID
		default:
			r.CurrentTaskID = ""
			r.PriorStatus = ""
		}
		r.Status = to

		h := history.New(history.EntityRoom, r.ID, action, by.String(), e.now()).WithReason(in.Reason)
		h.From, h.To = string(from), string(to)
		if in.TaskID != "" {
			h = h.With("taskId", in.TaskID)
		}
		if err := e.commit(ctx, &r, h); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		e.Metrics.CommandError("room.update_status", string(apperr.KindOf(err)))
		return Room{}, err
	}
	return out, nil
}

func (e *Engine) commit(ctx context.Context, r *Room, h history.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expected := r.Version
	r.Version++
	r.UpdatedAt = h.OccurredAt
	if err := e.Repo.UpdateRoom(ctx, *r, expected, h); err != nil {
		r.Version = expected
		return err
	}
	if h.From != h.To {
		e.Metrics.Transition("room", h.From, h.To)
	}
	return nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}
