package tenant

import (
	"encoding/json"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

var (
	// errors
	ErrTenantNotFound      = core.NewNotFoundError("tenant not found")
	ErrRoleNotFound        = core.NewNotFoundError("role not found")
	ErrEmailNotFound       = core.NewNotFoundError("email not found in tenant")
	ErrRoleAlreadyActive   = core.NewConflictError("role already active")
	ErrRoleAlreadyInactive = core.NewConflictError("role already inactive")
	ErrEmailExists         = core.NewConflictError("email already exists")
	ErrRolesAlreadySet     = core.NewConflictError("tenant roles already set")
	ErrTenantExists        = core.NewConflictError("tenant already exists")
	ErrStaleTenant         = core.NewConflictError("tenant was modified by another request")
	ErrMasterRoleImmutable = core.NewAccessDeniedError("master role cannot be changed")
	ErrMasterMember        = core.NewConflictError("email is the master of a tenant")
	ErrInactiveRole        = core.NewInactiveTenantError("role is inactive in tenant")

	errRegistrationIDRequired = errors.New("registration id mandatory to create a new tenant")
)

// Tenant (a "master") is an independent school account.
// It owns, for every member email, the ordered history of role assignments (most recent last).
// All mutations go through its methods.
type Tenant struct {
	ID      string
	CNPJ    string
	Version int

	roles map[string][]RoleAssignment
}

// New returns an empty Tenant with a fresh ID.
func New(cnpj string) (*Tenant, error) {
	return Restore(uuid.New().String(), cnpj, 0, nil)
}

// Restore rebuilds a Tenant from stored values.
func Restore(id, cnpj string, version int, entries map[string][]RoleAssignment) (*Tenant, error) {
	if !ValidCNPJ(core.CleanString(cnpj)) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "cnpj", Error: "cnpj must be a valid CNPJ"})
	}
	t := &Tenant{
		ID:      core.CleanString(id, true /* lower */),
		CNPJ:    NormalizeCNPJ(cnpj),
		Version: version,
		roles:   make(map[string][]RoleAssignment),
	}
	if !core.IsUUID4(t.ID) {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "masterId", Error: "masterId must be a valid UUID v4"})
	}
	if len(entries) > 0 {
		if err := t.SetRoles(entries); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// SetRoles bulk loads role assignments. It only works on a Tenant without any record.
func (t *Tenant) SetRoles(entries map[string][]RoleAssignment) error {
	if len(t.roles) > 0 {
		return ErrRolesAlreadySet
	}
	roles := make(map[string][]RoleAssignment, len(entries))
	for email, records := range entries {
		if !core.IsEmail(email) {
			return errInvalidEmail("email", email)
		}
		cp := make([]RoleAssignment, 0, len(records))
		for _, ra := range records {
			if !ra.Role.IsValid() {
				return errInvalidRole(ra.Role)
			}
			cp = append(cp, ra)
		}
		roles[email] = cp
	}
	t.roles = roles
	return nil
}

// AddTenantUserRole grants r to email.
// A previously deactivated assignment is reactivated and must be verified again.
func (t *Tenant) AddTenantUserRole(email string, r role.Role) error {
	if !core.IsEmail(email) {
		return errInvalidEmail("email", email)
	}
	if !r.IsValid() {
		return errInvalidRole(r)
	}

	records := t.roles[email]
	if i := findRole(records, r); i >= 0 {
		if records[i].IsActive() {
			return ErrRoleAlreadyActive.WithDetail(core.Detail{"email": email, "role": r})
		}
		records[i].Reactivate(true)
		return nil
	}

	ra, err := NewRoleAssignment(r)
	if err != nil {
		return err
	}
	t.roles[email] = append(records, ra)
	return nil
}

// ChangeTenantUserRole replaces oldRole by newRole for email.
// The master role can neither be given nor taken this way.
func (t *Tenant) ChangeTenantUserRole(email string, oldRole, newRole role.Role) error {
	if oldRole == role.Master || newRole == role.Master {
		return ErrMasterRoleImmutable
	}
	if oldRole == newRole {
		return nil
	}

	records := t.roles[email]
	oldIdx := findRole(records, oldRole)
	if oldIdx < 0 {
		return ErrRoleNotFound.WithDetail(core.Detail{"email": email, "role": oldRole})
	}
	if !newRole.IsValid() {
		return errInvalidRole(newRole)
	}

	if newIdx := findRole(records, newRole); newIdx >= 0 {
		if records[newIdx].IsActive() {
			return ErrRoleAlreadyActive.WithDetail(core.Detail{"email": email, "role": newRole})
		}
		records[oldIdx].Deactivate()
		records[newIdx].Reactivate(true)
		return nil
	}

	ra, err := NewRoleAssignment(newRole)
	if err != nil {
		return err
	}
	records[oldIdx].Deactivate()
	t.roles[email] = append(records, ra)
	return nil
}

// RenameUserEmail moves the whole role history of oldEmail to newEmail.
func (t *Tenant) RenameUserEmail(oldEmail, newEmail string) error {
	if !core.IsEmail(oldEmail) {
		return errInvalidEmail("oldEmail", oldEmail)
	}
	if !core.IsEmail(newEmail) {
		return errInvalidEmail("newEmail", newEmail)
	}

	records, ok := t.roles[oldEmail]
	if !ok || len(records) == 0 {
		return ErrEmailNotFound.WithDetail(core.Detail{"email": oldEmail})
	}
	if _, exists := t.roles[newEmail]; exists {
		return ErrEmailExists.WithDetail(core.Detail{"email": newEmail})
	}

	t.roles[newEmail] = records
	delete(t.roles, oldEmail)
	return nil
}

// DeactivateTenantUserRole revokes r from email, keeping the record as history.
func (t *Tenant) DeactivateTenantUserRole(email string, r role.Role) error {
	if r == role.Master {
		return ErrMasterRoleImmutable
	}
	records := t.roles[email]
	i := findRole(records, r)
	if i < 0 {
		return ErrRoleNotFound.WithDetail(core.Detail{"email": email, "role": r})
	}
	if !records[i].IsActive() {
		return ErrRoleAlreadyInactive.WithDetail(core.Detail{"email": email, "role": r})
	}
	records[i].Deactivate()
	return nil
}

// MarkTenantUserRoleVerified clears the pending verification of an active assignment.
func (t *Tenant) MarkTenantUserRoleVerified(email string, r role.Role) error {
	records := t.roles[email]
	i := findRole(records, r)
	if i < 0 {
		return ErrRoleNotFound.WithDetail(core.Detail{"email": email, "role": r})
	}
	if !records[i].IsActive() {
		return ErrInactiveRole.WithDetail(core.Detail{"email": email, "role": r})
	}
	records[i].MarkVerified()
	return nil
}

// Role returns the assignment of r for email.
func (t *Tenant) Role(email string, r role.Role) (RoleAssignment, bool) {
	records := t.roles[email]
	if i := findRole(records, r); i >= 0 {
		return records[i], true
	}
	return RoleAssignment{}, false
}

// Roles returns a copy of the role history of email.
func (t *Tenant) Roles(email string) []RoleAssignment {
	records, ok := t.roles[email]
	if !ok {
		return nil
	}
	cp := make([]RoleAssignment, len(records))
	copy(cp, records)
	return cp
}

// ActiveRoles returns the roles email may currently act as, in history order.
func (t *Tenant) ActiveRoles(email string) []role.Role {
	var active []role.Role
	for _, ra := range t.roles[email] {
		if ra.IsActive() {
			active = append(active, ra.Role)
		}
	}
	return active
}

func (t *Tenant) HasEmail(email string) bool {
	_, ok := t.roles[email]
	return ok
}

// Emails returns the member emails, sorted.
func (t *Tenant) Emails() []string {
	emails := make([]string, 0, len(t.roles))
	for email := range t.roles {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return emails
}

// Entries returns a deep copy of all role assignments.
func (t *Tenant) Entries() map[string][]RoleAssignment {
	entries := make(map[string][]RoleAssignment, len(t.roles))
	for email := range t.roles {
		entries[email] = t.Roles(email)
	}
	return entries
}

// Clone returns a deep copy of t.
func (t *Tenant) Clone() *Tenant {
	return &Tenant{
		ID:      t.ID,
		CNPJ:    t.CNPJ,
		Version: t.Version,
		roles:   t.Entries(),
	}
}

func (t *Tenant) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID      string                      `json:"id"`
		CNPJ    string                      `json:"cnpj"`
		Version int                         `json:"version"`
		Roles   map[string][]RoleAssignment `json:"roles"`
	}{
		ID:      t.ID,
		CNPJ:    t.CNPJ,
		Version: t.Version,
		Roles:   t.Entries(),
	})
}

// findRole returns the index of the most recent record of r, or -1.
func findRole(records []RoleAssignment, r role.Role) int {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Role == r {
			return i
		}
	}
	return -1
}

func errInvalidEmail(field, email string) error {
	return core.NewValidationError(nil, core.FieldError{Field: field, Error: "invalid email " + email})
}

func errInvalidRole(r role.Role) error {
	return core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role " + string(r)})
}
