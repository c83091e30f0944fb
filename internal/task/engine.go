package task

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
	"housekeeping/internal/outbox"
	"housekeeping/internal/room"
)

const defaultDispatchTimeout = 3 * time.Second

type Engine struct {
	Repo  Repository
	Rooms RoomReader
	Locks *lock.Manager
	// Events receives the outbox events of each committed transition. When
	// nil, events wait for the relay.
	Events Deliverer
	// DispatchTimeout bounds how long a command waits for room follow-ups.
	DispatchTimeout time.Duration
	Log             *zap.Logger
	Metrics         *metrics.Metrics
	Now             func() time.Time
}

type CreateInput struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Priority  string `json:"priority,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

func (e *Engine) Create(ctx context.Context, in CreateInput, by actor.Actor) (Task, error) {
	t, h, err := e.newTask(ctx, in, by)
	if err != nil {
		e.Metrics.CommandError("task.create", string(apperr.KindOf(err)))
		return Task{}, err
	}
	if err := ctx.Err(); err != nil {
		return Task{}, err
	}
	if err := e.Repo.InsertTask(ctx, t, h); err != nil {
		return Task{}, err
	}
	e.logger().Info("task created", zap.String("task_id", t.ID), zap.String("type", string(t.Type)), zap.String("room_id", t.RoomID))
	return t, nil
}

func (e *Engine) newTask(ctx context.Context, in CreateInput, by actor.Actor) (Task, history.Entry, error) {
	typ, err := ParseType(in.Type)
	if err != nil {
		return Task{}, history.Entry{}, apperr.Validation("%v", err)
	}
	prio := PriorityNormal
	if in.Priority != "" {
		if prio, err = ParsePriority(in.Priority); err != nil {
			return Task{}, history.Entry{}, apperr.Validation("%v", err)
		}
	}
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		return Task{}, history.Entry{}, apperr.Validation("roomId is required")
	}
	r, err := e.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return Task{}, history.Entry{}, apperr.Validation("room %s does not exist", roomID)
		}
		return Task{}, history.Entry{}, err
	}
	if r.Status == room.StatusOutOfOrder && typ != TypeInspection {
		return Task{}, history.Entry{}, apperr.Validation("room %s is out_of_order and only accepts inspection tasks", r.Number)
	}

	now := e.now()
	t := Task{
		ID:        uuid.NewString(),
		Type:      typ,
		Status:    StatusPending,
		Priority:  prio,
		RoomID:    r.ID,
		CreatedBy: by.String(),
		RequestID: in.RequestID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h := history.New(history.EntityTask, t.ID, history.ActionCreated, by.String(), now).
		With("type", string(typ)).
		With("roomId", r.ID)
	h.To = string(StatusPending)
	return t, h, nil
}

// Assign sets the assignee of a pending task. The task stays pending until started.
func (e *Engine) Assign(ctx context.Context, id, staffID string, by actor.Actor) (Task, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return Task{}, apperr.Validation("staffId is required")
	}
	return e.mutate(ctx, "task.assign", id, func(t *Task, now time.Time) (history.Entry, []outbox.Event, error) {
		if t.Status != StatusPending {
			return history.Entry{}, nil, apperr.InvalidTransition("task %s is %s; only pending tasks can be assigned", t.ID, t.Status)
		}
		if t.Assignee != "" {
			return history.Entry{}, nil, apperr.InvalidTransition("task %s is already assigned to %s", t.ID, t.Assignee)
		}
		t.Assignee = staffID
		t.AssignedAt = &now
		h := history.New(history.EntityTask, t.ID, history.ActionAssigned, by.String(), now)
		h.To = staffID
		return h, nil, nil
	})
}

func (e *Engine) Start(ctx context.Context, id string, by actor.Actor) (Task, error) {
	return e.mutate(ctx, "task.start", id, func(t *Task, now time.Time) (history.Entry, []outbox.Event, error) {
		if t.Status != StatusPending {
			return history.Entry{}, nil, apperr.InvalidTransition("task %s is %s and cannot start", t.ID, t.Status)
		}
		if t.Assignee == "" {
			return history.Entry{}, nil, apperr.NotAssigned("task %s has no assignee", t.ID)
		}
		var events []outbox.Event
		if t.Type.AffectsRoom() {
			r, err := e.Rooms.GetRoom(ctx, t.RoomID)
			if err != nil {
				return history.Entry{}, nil, err
			}
			if !r.Status.Cleanable() {
				return history.Entry{}, nil, apperr.InvalidRoomTransition("room %s is %s and cannot be cleaned", r.Number, r.Status)
			}
			events = append(events, outbox.New(outbox.KindTaskStarted, t.ID, string(t.Type), t.RoomID, now))
		}
		t.Status = StatusInProgress
		t.StartedAt = &now
		return e.transition(t, StatusPending, by, now), events, nil
	})
}

func (e *Engine) Complete(ctx context.Context, id string, by actor.Actor) (Task, error) {
	return e.mutate(ctx, "task.complete", id, func(t *Task, now time.Time) (history.Entry, []outbox.Event, error) {
		if t.Status != StatusInProgress {
			return history.Entry{}, nil, apperr.InvalidTransition("task %s is %s and cannot complete", t.ID, t.Status)
		}
		t.Status = StatusCompleted
		t.CompletedAt = &now
		ev := outbox.New(outbox.KindTaskCompleted, t.ID, string(t.Type), t.RoomID, now)
		return e.transition(t, StatusInProgress, by, now), []outbox.Event{ev}, nil
	})
}

type InspectInput struct {
	Passed bool   `json:"passed"`
	Note   string `json:"note,omitempty"`
}

type InspectResult struct {
	Task Task `json:"task"`
	// Reclean is the follow-up task opened by a failed inspection.
	Reclean *Task `json:"reclean,omitempty"`
}

// Inspect records the inspection of a completed task. A failed inspection
// leaves the original task untouched apart from its result and opens a new
// regular task for the same room.
func (e *Engine) Inspect(ctx context.Context, id string, in InspectInput, by actor.Actor) (InspectResult, error) {
	var spawned *Task
	t, err := e.mutateWith(ctx, "task.inspect", id, func(t *Task, now time.Time, c *Change) error {
		if t.Status != StatusCompleted {
			return apperr.InvalidTransition("task %s is %s and cannot be inspected", t.ID, t.Status)
		}
		passed := in.Passed
		t.Status = StatusInspected
		t.InspectionPassed = &passed
		t.InspectionNote = strings.TrimSpace(in.Note)
		t.InspectedAt = &now
		c.History = e.transition(t, StatusCompleted, by, now).With("passed", passed)
		ev := outbox.New(outbox.KindTaskInspected, t.ID, string(t.Type), t.RoomID, now)
		ev.Passed = passed
		c.Events = []outbox.Event{ev}

		if passed {
			return nil
		}
		r, err := e.Rooms.GetRoom(ctx, t.RoomID)
		if err != nil {
			return err
		}
		if r.Status == room.StatusOutOfOrder {
			return apperr.InvalidRoomTransition("room %s is out_of_order; release it before failing the inspection", r.Number)
		}
		re := Task{
			ID:           uuid.NewString(),
			Type:         TypeRegular,
			Status:       StatusPending,
			Priority:     t.Priority.AtLeast(PriorityHigh),
			RoomID:       t.RoomID,
			CreatedBy:    by.String(),
			ParentTaskID: t.ID,
			Version:      1,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		rh := history.New(history.EntityTask, re.ID, history.ActionCreated, by.String(), now).
			With("type", string(re.Type)).
			With("parentTaskId", t.ID).
			WithReason("inspection failed")
		rh.To = string(StatusPending)
		c.Spawned = &re
		c.SpawnedHistory = rh
		spawned = &re
		return nil
	})
	if err != nil {
		return InspectResult{}, err
	}
	return InspectResult{Task: t, Reclean: spawned}, nil
}

// Fail ends a pending or in-progress task. Failed tasks are not retried; a
// new task must be created explicitly.
func (e *Engine) Fail(ctx context.Context, id, reason string, by actor.Actor) (Task, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Task{}, apperr.Validation("reason is required")
	}
	return e.mutate(ctx, "task.fail", id, func(t *Task, now time.Time) (history.Entry, []outbox.Event, error) {
		if !CanTransition(t.Status, StatusFailed) {
			return history.Entry{}, nil, apperr.InvalidTransition("task %s is %s and cannot fail", t.ID, t.Status)
		}
		from := t.Status
		t.Status = StatusFailed
		t.FailureReason = reason
		t.FailedAt = &now
		ev := outbox.New(outbox.KindTaskFailed, t.ID, string(t.Type), t.RoomID, now)
		return e.transition(t, from, by, now).WithReason(reason), []outbox.Event{ev}, nil
	})
}

func (e *Engine) Get(ctx context.Context, id string) (Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e *Engine) List(ctx context.Context, f Filter) ([]Task, error) {
	items, err := e.Repo.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	SortQueue(items)
	return items, nil
}

// Queue lists the active tasks assigned to a staff member in working order.
func (e *Engine) Queue(ctx context.Context, staffID string) ([]Task, error) {
	if strings.TrimSpace(staffID) == "" {
		return nil, apperr.Validation("staff id is required")
	}
	return e.List(ctx, Filter{Assignee: staffID, ActiveOnly: true})
}

func (e *Engine) History(ctx context.Context, id string) ([]history.Entry, error) {
	if _, err := e.Repo.GetTask(ctx, id); err != nil {
		return nil, err
	}
	return e.Repo.ListHistory(ctx, history.EntityTask, id)
}

// IsActiveTaskFor reports whether taskID is pending or in progress and targets roomID.
func (e *Engine) IsActiveTaskFor(ctx context.Context, taskID, roomID string) (bool, error) {
	if taskID == "" {
		return false, nil
	}
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return t.RoomID == roomID && t.Status.Active(), nil
}

type mutation func(t *Task, now time.Time) (history.Entry, []outbox.Event, error)

func (e *Engine) mutate(ctx context.Context, op, id string, fn mutation) (Task, error) {
	return e.mutateWith(ctx, op, id, func(t *Task, now time.Time, c *Change) error {
		h, events, err := fn(t, now)
		if err != nil {
			return err
		}
		c.History = h
		c.Events = events
		return nil
	})
}

// mutateWith runs fn under the task lock and commits the resulting change.
// Outbox events are delivered after the lock is released.
func (e *Engine) mutateWith(ctx context.Context, op, id string, fn func(t *Task, now time.Time, c *Change) error) (Task, error) {
	var (
		out    Task
		change Change
	)
	err := e.Locks.Do(ctx, lock.Key("task", id), func() error {
		t, err := e.Repo.GetTask(ctx, id)
		if err != nil {
			return err
		}
		from := t.Status
		now := e.now()
		change = Change{Expected: t.Version}
		if err := fn(&t, now, &change); err != nil {
			return err
		}
		t.Version++
		t.UpdatedAt = now
		change.Task = t

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Repo.ApplyTaskChange(ctx, change); err != nil {
			return err
		}
		if from != t.Status {
			e.Metrics.Transition("task", string(from), string(t.Status))
		}
		out = t
		return nil
	})
	if err != nil {
		e.Metrics.CommandError(op, string(apperr.KindOf(err)))
		return Task{}, err
	}
	e.dispatch(ctx, change.Events)
	return out, nil
}

// dispatch delivers follow-up events. The task transition is already
// committed, so a delivery that runs out of time is logged and left to the relay.
func (e *Engine) dispatch(ctx context.Context, events []outbox.Event) {
	if e.Events == nil || len(events) == 0 {
		return
	}
	timeout := e.DispatchTimeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, ev := range events {
		if err := e.Events.Deliver(dctx, ev); err != nil {
			e.logger().Warn("room follow-up not applied",
				zap.String("event_id", ev.ID),
				zap.String("kind", string(ev.Kind)),
				zap.String("task_id", ev.TaskID),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) transition(t *Task, from Status, by actor.Actor, now time.Time) history.Entry {
	return history.Transition(history.EntityTask, t.ID, string(from), string(t.Status), by.String(), now)
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
