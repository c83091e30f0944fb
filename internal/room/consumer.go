package room

import (
	"context"

	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/lock"
	"housekeeping/internal/outbox"
)

const checkoutTaskType = "checkout"

// cleaningTaskTypes move a room through cleaning when they start.
var cleaningTaskTypes = map[string]bool{"regular": true, checkoutTaskType: true, "deep_clean": true}

// Handle applies a task event to the target room. It is safe to deliver the
// same event more than once: an event whose effect is already visible, or
// has been superseded by a later change, is a no-op.
func (e *Engine) Handle(ctx context.Context, ev outbox.Event) error {
	return e.Locks.Do(ctx, lock.Key("room", ev.RoomID), func() error {
		r, err := e.Repo.GetRoom(ctx, ev.RoomID)
		if err != nil {
			return err
		}
		from := r.Status

		switch ev.Kind {
		case outbox.KindTaskStarted:
			if r.Status == StatusCleaning {
				return nil
			}
			// A start delivered after the task already finished or failed is stale.
			active, err := e.Tasks.IsActiveTaskFor(ctx, ev.TaskID, r.ID)
			if err != nil {
				return err
			}
			if !active {
				return nil
			}
			if r.Status != StatusVacant && r.Status != StatusOccupied {
				return apperr.InvalidRoomTransition("room %s is %s and cannot enter cleaning", r.Number, r.Status)
			}
			r.PriorStatus = r.Status
			r.CurrentTaskID = ev.TaskID
			r.Status = StatusCleaning

		case outbox.KindTaskCompleted:
			if r.Status != StatusCleaning {
				return nil
			}
			cleaning := cleaningTaskTypes[ev.TaskType]
			if r.CurrentTaskID != ev.TaskID {
				if !cleaning {
					return nil
				}
				held, err := e.Tasks.IsActiveTaskFor(ctx, r.CurrentTaskID, r.ID)
				if err != nil {
					return err
				}
				if held {
					// Another task still holds the room; only note the inspection debt.
					if r.InspectionRequired {
						return nil
					}
					r.InspectionRequired = true
					break
				}
			}
			switch {
			case ev.TaskType == checkoutTaskType:
				r.Status = StatusVacant
			case cleaning:
				r.Status = r.releaseStatus()
				r.InspectionRequired = true
			default:
				r.Status = r.releaseStatus()
			}
			r.CurrentTaskID = ""
			r.PriorStatus = ""

		case outbox.KindTaskFailed:
			if r.Status != StatusCleaning || r.CurrentTaskID != ev.TaskID {
				return nil
			}
			r.Status = r.releaseStatus()
			r.CurrentTaskID = ""
			r.PriorStatus = ""

		case outbox.KindTaskInspected:
			if !ev.Passed || !r.InspectionRequired {
				return nil
			}
			r.InspectionRequired = false

		default:
			e.logger().Warn("room consumer ignoring unknown event kind", zap.String("kind", string(ev.Kind)))
			return nil
		}

		h := history.New(history.EntityRoom, r.ID, history.ActionStatusChanged, actor.System.String(), e.now()).
			With("eventId", ev.ID).
			With("event", string(ev.Kind)).
			With("taskId", ev.TaskID)
		h.From, h.To = string(from), string(r.Status)
		return e.commit(ctx, &r, h)
	})
}

func (r Room) releaseStatus() Status {
	if r.PriorStatus == StatusVacant || r.PriorStatus == StatusOccupied {
		return r.PriorStatus
	}
	return StatusVacant
}
