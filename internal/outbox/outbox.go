package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindTaskStarted   Kind = "task_started"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"
	KindTaskInspected Kind = "task_inspected"
)

// Event is a cross-entity side effect recorded together with the
// transition that caused it. Consumers must be idempotent: an event can
// be delivered by the request path and again by the relay.
type Event struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	TaskID      string     `json:"taskId"`
	TaskType    string     `json:"taskType"`
	RoomID      string     `json:"roomId"`
	Passed      bool       `json:"passed,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"lastError,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	Dead        bool       `json:"dead"`
}

func New(kind Kind, taskID, taskType, roomID string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		TaskID:    taskID,
		TaskType:  taskType,
		RoomID:    roomID,
		CreatedAt: at,
	}
}

type Repository interface {
	// PendingEvents returns undelivered, live events oldest first.
	PendingEvents(ctx context.Context, limit int) ([]Event, error)
	MarkDelivered(ctx context.Context, id string, attempts int, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, lastErr string, dead bool) error
}

type Consumer interface {
	Handle(ctx context.Context, ev Event) error
}

type ConsumerFunc func(ctx context.Context, ev Event) error

func (f ConsumerFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Publisher forwards delivered events to external subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
