package task

import (
	"context"
	"time"

	"housekeeping/internal/history"
	"housekeeping/internal/outbox"
	"housekeeping/internal/room"
)

type Task struct {
	ID           string   `json:"id"`
	Type         Type     `json:"type"`
	Status       Status   `json:"status"`
	Priority     Priority `json:"priority"`
	RoomID       string   `json:"roomId"`
	Assignee     string   `json:"assignee,omitempty"`
	CreatedBy    string   `json:"createdBy"`
	ParentTaskID string   `json:"parentTaskId,omitempty"`
	// RequestID is set when a service request spawned the task.
	RequestID        string `json:"requestId,omitempty"`
	FailureReason    string `json:"failureReason,omitempty"`
	InspectionPassed *bool  `json:"inspectionPassed,omitempty"`
	InspectionNote   string `json:"inspectionNote,omitempty"`
	Version          int64  `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	InspectedAt *time.Time `json:"inspectedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Filter struct {
	Status   Status
	Assignee string
	Priority Priority
	RoomID   string
	Type     Type
	// ActiveOnly keeps pending and in_progress tasks.
	ActiveOnly bool
}

func (f Filter) Match(t Task) bool {
	switch {
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.Assignee != "" && t.Assignee != f.Assignee:
		return false
	case f.Priority != "" && t.Priority != f.Priority:
		return false
	case f.RoomID != "" && t.RoomID != f.RoomID:
		return false
	case f.Type != "" && t.Type != f.Type:
		return false
	case f.ActiveOnly && !t.Status.Active():
		return false
	}
	return true
}

// Change is one committed task transition. The store writes the task, its
// history entry, the outbox events and any spawned task in one unit of work.
type Change struct {
	Task     Task
	Expected int64
	History  history.Entry
	Events   []outbox.Event

	Spawned        *Task
	SpawnedHistory history.Entry
}

type Repository interface {
	InsertTask(ctx context.Context, t Task, h history.Entry) error
	GetTask(ctx context.Context, id string) (Task, error)
	ListTasks(ctx context.Context, f Filter) ([]Task, error)
	// ApplyTaskChange fails with apperr Busy when the stored version is not c.Expected.
	ApplyTaskChange(ctx context.Context, c Change) error
	history.Reader
}

type RoomReader interface {
	GetRoom(ctx context.Context, id string) (room.Room, error)
}

// Deliverer hands committed events to their consumer.
type Deliverer interface {
	Deliver(ctx context.Context, ev outbox.Event) error
}
