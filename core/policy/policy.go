// Package policy holds the single authorization check every use case goes through.
package policy

import (
	"github.com/escolar/backend/core/role"
	"github.com/escolar/backend/core/session"
)

type (
	Module string
	Action string
	Effect string
)

const (
	ModuleCredential Module = "credential"
	ModuleTenant     Module = "tenant"
	ModuleEvaluation Module = "evaluation"
	ModuleNote       Module = "note"
	ModuleAttendance Module = "attendance"
	ModuleEvent      Module = "event"
	ModuleLesson     Module = "lesson"

	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionList   Action = "list"

	// Allow grants the action.
	Allow Effect = "allow"
	// Self grants the action only on the caller's own email.
	Self Effect = "self"
	// Owner grants the action on the caller's own email and on targets owned by the caller's tenant.
	Owner Effect = "owner"
	// Deny is explicit; any unknown effect denies as well.
	Deny Effect = "deny"
)

var (
	Modules = []Module{ModuleCredential, ModuleTenant, ModuleEvaluation, ModuleNote, ModuleAttendance, ModuleEvent, ModuleLesson}
	Actions = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionList}
)

// Rules maps role -> module -> action -> effect.
type Rules map[role.Role]map[Module]map[Action]Effect

// Context narrows a check to a target.
type Context struct {
	// TargetEmail is the email the action applies to; required by Self rules.
	TargetEmail string
	// MasterID, when set, must be the tenant the token is scoped to.
	MasterID string
	// TargetOwner is the tenant owning the target; required by Owner rules.
	TargetOwner string
}

type Gate struct {
	rules Rules
}

func NewGate(src RuleSource) (*Gate, error) {
	rules, err := src.Rules()
	if err != nil {
		return nil, err
	}
	return &Gate{rules: rules}, nil
}

// VerifyPolicies reports whether the bearer of claims may perform action on module.
// Anything missing or unknown is a denial.
func (g *Gate) VerifyPolicies(module Module, action Action, claims *session.Claims, ctx ...Context) bool {
	if claims == nil {
		return false
	}
	var c Context
	if len(ctx) > 0 {
		c = ctx[0]
	}
	if c.MasterID != "" && c.MasterID != claims.MasterID {
		return false
	}

	switch g.rules[claims.Role][module][action] {
	case Allow:
		return true
	case Self:
		return isSelf(c, claims)
	case Owner:
		return isSelf(c, claims) || (c.TargetOwner != "" && c.TargetOwner == claims.MasterID)
	default:
		return false
	}
}

func isSelf(c Context, claims *session.Claims) bool {
	return c.TargetEmail != "" && c.TargetEmail == claims.Email
}
