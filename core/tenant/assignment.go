package tenant

import (
	"github.com/escolar/backend/core/role"
)

type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
)

// Status is the activation status reported for a RoleAssignment.
type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusPendingVerification Status = "pending-verification"
)

// RoleAssignment is one (email, role) membership record inside a Tenant.
// Records are never removed: they are deactivated and later reactivated in place.
type RoleAssignment struct {
	Role             role.Role `json:"role"`
	State            State     `json:"state"`
	NeedVerification bool      `json:"needVerification"`
}

// NewRoleAssignment returns an active, verified record for r.
func NewRoleAssignment(r role.Role) (RoleAssignment, error) {
	if !r.IsValid() {
		return RoleAssignment{}, errInvalidRole(r)
	}
	return RoleAssignment{Role: r, State: StateActive}, nil
}

func (ra *RoleAssignment) IsActive() bool {
	return ra.State == StateActive
}

func (ra *RoleAssignment) Status() Status {
	switch {
	case ra.State != StateActive:
		return StatusInactive
	case ra.NeedVerification:
		return StatusPendingVerification
	default:
		return StatusActive
	}
}

// Deactivate moves an active or pending record to inactive.
func (ra *RoleAssignment) Deactivate() {
	ra.State = StateInactive
}

// Reactivate moves an inactive record back to active.
func (ra *RoleAssignment) Reactivate(requireVerification bool) {
	if ra.State != StateInactive {
		return
	}
	ra.State = StateActive
	ra.NeedVerification = requireVerification
}

// MarkVerified clears the pending flag of an active record.
func (ra *RoleAssignment) MarkVerified() {
	if ra.State != StateActive {
		return
	}
	ra.NeedVerification = false
}
