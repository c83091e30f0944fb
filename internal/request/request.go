package request

import (
	"context"
	"fmt"
	"sort"
	"time"

	"housekeeping/internal/history"
	"housekeeping/internal/task"
)

type Type string

const (
	TypeGuestRequest Type = "guest_request"
	TypeBreakdown    Type = "breakdown"
	TypeMaintenance  Type = "maintenance"
	TypeHousekeeping Type = "housekeeping"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeGuestRequest, TypeBreakdown, TypeMaintenance, TypeHousekeeping:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown request type: %s", s)
	}
}

// TaskType is the kind of task a request of this type spawns on assignment.
func (t Type) TaskType() (task.Type, bool) {
	switch t {
	case TypeHousekeeping:
		return task.TypeRegular, true
	case TypeMaintenance:
		return task.TypeInspection, true
	case TypeGuestRequest, TypeBreakdown:
		return "", false
	default:
		return "", false
	}
}

type Status string

const (
	StatusOpen       Status = "open"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusCancelled  Status = "cancelled"
)

var Statuses = []Status{StatusOpen, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed, StatusCancelled}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusResolved, StatusClosed, StatusCancelled:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown request status: %s", s)
	}
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusOpen:       {StatusAssigned: true, StatusCancelled: true},
	StatusAssigned:   {StatusAssigned: true, StatusInProgress: true, StatusResolved: true, StatusCancelled: true},
	StatusInProgress: {StatusAssigned: true, StatusResolved: true, StatusCancelled: true},
	StatusResolved:   {StatusClosed: true, StatusCancelled: true},
	StatusClosed:     {},
	StatusCancelled:  {},
}

func CanTransition(from, to Status) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

type Request struct {
	ID           string        `json:"id"`
	Type         Type          `json:"type"`
	Status       Status        `json:"status"`
	Priority     task.Priority `json:"priority"`
	Source       string        `json:"source"`
	RoomID       string        `json:"roomId,omitempty"`
	Description  string        `json:"description,omitempty"`
	Assignee     string        `json:"assignee,omitempty"`
	LinkedTaskID string        `json:"linkedTaskId,omitempty"`
	Resolution   string        `json:"resolution,omitempty"`
	CancelReason string        `json:"cancelReason,omitempty"`
	Version      int64         `json:"version"`

	CreatedAt   time.Time  `json:"createdAt"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt    *time.Time `json:"closedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type Filter struct {
	Status   Status
	Type     Type
	Priority task.Priority
	Assignee string
	RoomID   string
	// OpenOnly drops closed and cancelled requests.
	OpenOnly bool
}

func (f Filter) Match(r Request) bool {
	switch {
	case f.Status != "" && r.Status != f.Status:
		return false
	case f.Type != "" && r.Type != f.Type:
		return false
	case f.Priority != "" && r.Priority != f.Priority:
		return false
	case f.Assignee != "" && r.Assignee != f.Assignee:
		return false
	case f.RoomID != "" && r.RoomID != f.RoomID:
		return false
	case f.OpenOnly && r.Status.Terminal():
		return false
	}
	return true
}

// Sort orders requests by priority desc, created_at asc, then id.
func Sort(items []Request) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

type Repository interface {
	InsertRequest(ctx context.Context, r Request, h history.Entry) error
	GetRequest(ctx context.Context, id string) (Request, error)
	ListRequests(ctx context.Context, f Filter) ([]Request, error)
	// UpdateRequest fails with apperr Busy when the stored version is not expectedVersion.
	UpdateRequest(ctx context.Context, r Request, expectedVersion int64, h history.Entry) error
	history.Reader
}
