package task

import (
	"fmt"
	"sort"
)

type Type string

const (
	TypeRegular    Type = "regular"
	TypeCheckout   Type = "checkout"
	TypeDeepClean  Type = "deep_clean"
	TypeInspection Type = "inspection"
	TypeTurndown   Type = "turndown"
)

func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeRegular, TypeCheckout, TypeDeepClean, TypeInspection, TypeTurndown:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown task type: %s", s)
	}
}

// AffectsRoom reports whether starting and completing the task drives the room through cleaning.
func (t Type) AffectsRoom() bool {
	switch t {
	case TypeRegular, TypeCheckout, TypeDeepClean:
		return true
	case TypeInspection, TypeTurndown:
		return false
	default:
		return false
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusInspected  Status = "inspected"
	StatusFailed     Status = "failed"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusInspected, StatusFailed}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusInProgress, StatusCompleted, StatusInspected, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown task status: %s", s)
	}
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:    {StatusInProgress: true, StatusFailed: true},
	StatusInProgress: {StatusCompleted: true, StatusFailed: true},
	StatusCompleted:  {StatusInspected: true},
	StatusInspected:  {},
	StatusFailed:     {},
}

func CanTransition(from, to Status) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// Active tasks still hold a claim on their room.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusInProgress
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("unknown priority: %s", s)
	}
}

func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return -1
	}
}

// AtLeast returns the higher of p and floor.
func (p Priority) AtLeast(floor Priority) Priority {
	if p.Rank() < floor.Rank() {
		return floor
	}
	return p
}

// SortQueue orders tasks by priority desc, then created_at asc, then id.
func SortQueue(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
