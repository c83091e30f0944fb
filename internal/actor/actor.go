package actor

import "fmt"

type Role string

const (
	RoleStaff      Role = "staff"
	RoleSupervisor Role = "supervisor"
	RoleSystem     Role = "system"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStaff, RoleSupervisor, RoleSystem:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

// Actor identifies who issued a command. ID is a staff id, or a
// component name for system-originated follow-up steps.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// System is used for outbox consumers and background repairs.
var System = Actor{ID: "system", Role: RoleSystem}

func Staff(id string) Actor      { return Actor{ID: id, Role: RoleStaff} }
func Supervisor(id string) Actor { return Actor{ID: id, Role: RoleSupervisor} }

// CanOverride reports whether the actor holds the supervisor capability
// (release rooms from out_of_order, force stock corrections).
func (a Actor) CanOverride() bool {
	return a.Role == RoleSupervisor || a.Role == RoleSystem
}

func (a Actor) String() string {
	if a.ID == "" {
		return string(a.Role)
	}
	return a.ID
}
