package room

import (
	"context"
	"time"

	"housekeeping/internal/history"
)

type Room struct {
	ID     string `json:"id"`
	Number string `json:"number"`
	Floor  string `json:"floor,omitempty"`
	Status Status `json:"status"`

	// CurrentTaskID is the task holding the room in cleaning.
	CurrentTaskID string `json:"currentTaskId,omitempty"`
	// PriorStatus is the status the room returns to when cleaning ends
	// without a checkout.
	PriorStatus        Status    `json:"priorStatus,omitempty"`
	InspectionRequired bool      `json:"inspectionRequired"`
	Version            int64     `json:"version"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Filter struct {
	Status Status
	Floor  string
}

func (f Filter) Match(r Room) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Floor != "" && r.Floor != f.Floor {
		return false
	}
	return true
}

// Repository persists rooms. Every write carries the history entry that
// describes it; both land in one unit of work.
type Repository interface {
	InsertRoom(ctx context.Context, r Room, h history.Entry) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRooms(ctx context.Context, f Filter) ([]Room, error)
	// UpdateRoom fails with apperr Busy when the stored version is not expectedVersion.
	UpdateRoom(ctx context.Context, r Room, expectedVersion int64, h history.Entry) error
	history.Reader
}

// TaskChecker answers whether a task currently holds a claim on a room.
type TaskChecker interface {
	IsActiveTaskFor(ctx context.Context, taskID, roomID string) (bool, error)
}
