package room

import "fmt"

type Status string

const (
	StatusVacant      Status = "vacant"
	StatusOccupied    Status = "occupied"
	StatusCleaning    Status = "cleaning"
	StatusMaintenance Status = "maintenance"
	StatusOutOfOrder  Status = "out_of_order"
)

var Statuses = []Status{StatusVacant, StatusOccupied, StatusCleaning, StatusMaintenance, StatusOutOfOrder}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusVacant, StatusOccupied, StatusCleaning, StatusMaintenance, StatusOutOfOrder:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown room status: %s", s)
	}
}

// Entering cleaning additionally requires an active task; leaving
// out_of_order additionally requires the supervisor capability.
var allowedTransitions = map[Status]map[Status]bool{
	StatusVacant:      {StatusOccupied: true, StatusCleaning: true, StatusMaintenance: true, StatusOutOfOrder: true},
	StatusOccupied:    {StatusVacant: true, StatusCleaning: true, StatusMaintenance: true, StatusOutOfOrder: true},
	StatusCleaning:    {StatusVacant: true, StatusOutOfOrder: true},
	StatusMaintenance: {StatusVacant: true, StatusOutOfOrder: true},
	StatusOutOfOrder:  {StatusVacant: true, StatusMaintenance: true},
}

func CanTransition(from, to Status) bool {
	m, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return m[to]
}

// Cleanable reports whether a cleaning task may move a room in this status to cleaning.
func (s Status) Cleanable() bool {
	switch s {
	case StatusVacant, StatusOccupied, StatusCleaning:
		return true
	case StatusMaintenance, StatusOutOfOrder:
		return false
	default:
		return false
	}
}
