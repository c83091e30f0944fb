package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EntityType string

const (
	EntityRoom    EntityType = "room"
	EntityTask    EntityType = "task"
	EntityRequest EntityType = "request"
	EntityItem    EntityType = "item"
)

const (
	ActionCreated            = "CREATED"
	ActionStatusChanged      = "STATUS_CHANGED"
	ActionAssigned           = "ASSIGNED"
	ActionTaskLinked         = "TASK_LINKED"
	ActionSupervisorOverride = "SUPERVISOR_OVERRIDE"
	ActionQuantityRepaired   = "QUANTITY_REPAIRED"
)

// Entry is one append-only record of a mutation. Stores write it in the
// same unit of work as the entity change it describes.
type Entry struct {
	ID         string         `json:"id"`
	EntityType EntityType     `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Action     string         `json:"action"`
	From       string         `json:"from,omitempty"`
	To         string         `json:"to,omitempty"`
	Actor      string         `json:"actor"`
	Reason     string         `json:"reason,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
	Data       map[string]any `json:"data,omitempty"`
}

func New(entity EntityType, entityID, action, actor string, at time.Time) Entry {
	return Entry{
		ID:         uuid.NewString(),
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		OccurredAt: at,
	}
}

// Transition builds a STATUS_CHANGED entry.
func Transition(entity EntityType, entityID, from, to, actor string, at time.Time) Entry {
	e := New(entity, entityID, ActionStatusChanged, actor, at)
	e.From = from
	e.To = to
	return e
}

func (e Entry) WithReason(reason string) Entry {
	e.Reason = reason
	return e
}

func (e Entry) With(key string, value any) Entry {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}

type Reader interface {
	ListHistory(ctx context.Context, entity EntityType, entityID string) ([]Entry, error)
}
