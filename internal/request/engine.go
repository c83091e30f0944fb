package request

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
	"housekeeping/internal/task"
)

const maxDescription = 2000

// TaskSpawner is the slice of the task engine a request needs to open and
// abandon linked tasks.
type TaskSpawner interface {
	Create(ctx context.Context, in task.CreateInput, by actor.Actor) (task.Task, error)
	Assign(ctx context.Context, id, staffID string, by actor.Actor) (task.Task, error)
	Fail(ctx context.Context, id, reason string, by actor.Actor) (task.Task, error)
	Get(ctx context.Context, id string) (task.Task, error)
}

type Engine struct {
	Repo    Repository
	Rooms   task.RoomReader
	Tasks   TaskSpawner
	Locks   *lock.Manager
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type CreateInput struct {
	Type        string `json:"type"`
	Source      string `json:"source,omitempty"`
	RoomID      string `json:"roomId,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
}

func (e *Engine) Create(ctx context.Context, in CreateInput, by actor.Actor) (Request, error) {
	typ, err := ParseType(in.Type)
	if err != nil {
		return Request{}, apperr.Validation("%v", err)
	}
	prio := task.PriorityNormal
	if in.Priority != "" {
		if prio, err = task.ParsePriority(in.Priority); err != nil {
			return Request{}, apperr.Validation("%v", err)
		}
	}
	desc := strings.TrimSpace(in.Description)
	if len(desc) > maxDescription {
		return Request{}, apperr.Validation("description exceeds %d characters", maxDescription)
	}
	roomID := strings.TrimSpace(in.RoomID)
	if roomID != "" {
		if _, err := e.Rooms.GetRoom(ctx, roomID); err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				return Request{}, apperr.Validation("room %s does not exist", roomID)
			}
			return Request{}, err
		}
	}
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = by.String()
	}

	now := e.now()
	r := Request{
		ID:          uuid.NewString(),
		Type:        typ,
		Status:      StatusOpen,
		Priority:    prio,
		Source:      source,
		RoomID:      roomID,
		Description: desc,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	h := history.New(history.EntityRequest, r.ID, history.ActionCreated, by.String(), now).With("type", string(typ))
	h.To = string(StatusOpen)
	if err := ctx.Err(); err != nil {
		return Request{}, err
	}
	if err := e.Repo.InsertRequest(ctx, r, h); err != nil {
		return Request{}, err
	}
	return r, nil
}

type AssignInput struct {
	StaffID string `json:"staffId"`
	// SpawnTask opens a linked task assigned to the same staff member.
	SpawnTask bool `json:"spawnTask,omitempty"`
}

// Assign moves an open request to assigned. When a task is spawned it is
// created and assigned first; if the request commit then fails, the orphan
// task is failed so it never lingers as active work.
func (e *Engine) Assign(ctx context.Context, id string, in AssignInput, by actor.Actor) (Request, error) {
	return e.assign(ctx, "request.assign", id, in, by, false)
}

// Reassign hands an assigned or in-progress request to another staff member.
// It is the supervisor path after a linked task failed.
func (e *Engine) Reassign(ctx context.Context, id string, in AssignInput, by actor.Actor) (Request, error) {
	if !by.CanOverride() {
		return Request{}, apperr.Forbidden("reassigning a request requires a supervisor")
	}
	return e.assign(ctx, "request.reassign", id, in, by, true)
}

func (e *Engine) assign(ctx context.Context, op, id string, in AssignInput, by actor.Actor, reassign bool) (Request, error) {
	staffID := strings.TrimSpace(in.StaffID)
	if staffID == "" {
		return Request{}, apperr.Validation("staffId is required")
	}

	var (
		out        Request
		spawned    string
		superseded string
	)
	err := e.Locks.Do(ctx, lock.Key("request", id), func() error {
		r, err := e.Repo.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		from := r.Status
		if reassign && from != StatusAssigned && from != StatusInProgress {
			return apperr.InvalidTransition("request %s is %s and cannot be reassigned", r.ID, from)
		}
		if !reassign && from != StatusOpen {
			return apperr.InvalidTransition("request %s is %s; only open requests can be assigned", r.ID, from)
		}

		var taskType task.Type
		if in.SpawnTask {
			tt, ok := r.Type.TaskType()
			if !ok {
				return apperr.Validation("%s requests do not spawn tasks", r.Type)
			}
			if r.RoomID == "" {
				return apperr.Validation("request %s has no room to spawn a task for", r.ID)
			}
			taskType = tt
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		now := e.now()
		if in.SpawnTask {
			t, err := e.Tasks.Create(ctx, task.CreateInput{
				Type:      string(taskType),
				RoomID:    r.RoomID,
				Priority:  string(r.Priority),
				RequestID: r.ID,
			}, by)
			if err != nil {
				return err
			}
			spawned = t.ID
			if _, err := e.Tasks.Assign(ctx, t.ID, staffID, by); err != nil {
				return err
			}
			if r.LinkedTaskID != "" {
				superseded = r.LinkedTaskID
			}
			r.LinkedTaskID = t.ID
		}

		r.Status = StatusAssigned
		r.Assignee = staffID
		r.AssignedAt = &now
		h := history.Transition(history.EntityRequest, r.ID, string(from), string(StatusAssigned), by.String(), now).
			With("assignee", staffID)
		if spawned != "" {
			h = h.With("linkedTaskId", spawned)
		}
		if err := e.commit(ctx, &r, from, h); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		e.Metrics.CommandError(op, string(apperr.KindOf(err)))
		if spawned != "" {
			e.abandon(ctx, spawned, "request assignment aborted")
		}
		return Request{}, err
	}
	if superseded != "" {
		e.abandon(ctx, superseded, "request reassigned")
	}
	return out, nil
}

// abandon fails a linked task that no longer backs its request. It runs
// detached from the caller's cancellation.
func (e *Engine) abandon(ctx context.Context, taskID, reason string) {
	ctx = context.WithoutCancel(ctx)
	t, err := e.Tasks.Get(ctx, taskID)
	if err != nil || !t.Status.Active() {
		return
	}
	if _, err := e.Tasks.Fail(ctx, taskID, reason, actor.System); err != nil {
		e.logger().Warn("linked task not failed", zap.String("task_id", taskID), zap.String("reason", reason), zap.Error(err))
	}
}

func (e *Engine) Start(ctx context.Context, id string, by actor.Actor) (Request, error) {
	return e.mutate(ctx, "request.start", id, StatusInProgress, by, func(r *Request, now time.Time) (history.Entry, error) {
		r.StartedAt = &now
		return history.Entry{}, nil
	})
}

func (e *Engine) Resolve(ctx context.Context, id, note string, by actor.Actor) (Request, error) {
	return e.mutate(ctx, "request.resolve", id, StatusResolved, by, func(r *Request, now time.Time) (history.Entry, error) {
		r.Resolution = strings.TrimSpace(note)
		r.ResolvedAt = &now
		return history.Entry{}, nil
	})
}

func (e *Engine) Close(ctx context.Context, id string, by actor.Actor) (Request, error) {
	return e.mutate(ctx, "request.close", id, StatusClosed, by, func(r *Request, now time.Time) (history.Entry, error) {
		r.ClosedAt = &now
		return history.Entry{}, nil
	})
}

// Cancel ends any non-terminal request. A linked task is left as is.
func (e *Engine) Cancel(ctx context.Context, id, reason string, by actor.Actor) (Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Request{}, apperr.Validation("reason is required")
	}
	return e.mutate(ctx, "request.cancel", id, StatusCancelled, by, func(r *Request, now time.Time) (history.Entry, error) {
		r.CancelReason = reason
		r.CancelledAt = &now
		return history.Entry{Reason: reason}, nil
	})
}

func (e *Engine) Get(ctx context.Context, id string) (Request, error) {
	return e.Repo.GetRequest(ctx, id)
}

func (e *Engine) List(ctx context.Context, f Filter) ([]Request, error) {
	items, err := e.Repo.ListRequests(ctx, f)
	if err != nil {
		return nil, err
	}
	Sort(items)
	return items, nil
}

func (e *Engine) History(ctx context.Context, id string) ([]history.Entry, error) {
	if _, err := e.Repo.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, history.EntityRequest, id)
}

// mutate applies a plain status move. fn may fill in timestamps and returns
// an entry whose Reason is copied onto the transition record.
func (e *Engine) mutate(ctx context.Context, op, id string, to Status, by actor.Actor, fn func(r *Request, now time.Time) (history.Entry, error)) (Request, error) {
	var out Request
	err := e.Locks.Do(ctx, lock.Key("request", id), func() error {
		r, err := e.Repo.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		from := r.Status
		if !CanTransition(from, to) || from == to {
			return apperr.InvalidTransition("request %s is %s and cannot move to %s", r.ID, from, to)
		}
		now := e.now()
		extra, err := fn(&r, now)
		if err != nil {
			return err
		}
		r.Status = to
		h := history.Transition(history.EntityRequest, r.ID, string(from), string(to), by.String(), now).WithReason(extra.Reason)
		if err := e.commit(ctx, &r, from, h); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		e.Metrics.CommandError(op, string(apperr.KindOf(err)))
		return Request{}, err
	}
	return out, nil
}

func (e *Engine) commit(ctx context.Context, r *Request, from Status, h history.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	expected := r.Version
	r.Version++
	r.UpdatedAt = h.OccurredAt
	if err := e.Repo.UpdateRequest(ctx, *r, expected, h); err != nil {
		return err
	}
	if from != r.Status {
		e.Metrics.Transition("request", string(from), string(r.Status))
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
