package tenant

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

type (
	Repository interface {
		Find(ctx context.Context, id string) (*Tenant, error)
		// FindByEmail returns every tenant holding at least one record (of any state) for email.
		FindByEmail(ctx context.Context, email string) ([]*Tenant, error)
		Create(ctx context.Context, t *Tenant) error
		Update(ctx context.Context, id string, t *Tenant) error
		Delete(ctx context.Context, id string) error
	}

	// VersionedRepository is implemented by stores supporting version-checked updates.
	// UpdateVersion fails with ErrStaleTenant when the stored version differs from expected.
	VersionedRepository interface {
		UpdateVersion(ctx context.Context, id string, t *Tenant, expected int) error
	}

	RoleAssignmentRequest struct {
		Email    string    `json:"email" validate:"required,email"`
		Role     role.Role `json:"role" validate:"required,role"`
		MasterID string    `json:"masterId" validate:"omitempty,uuid4"`
		CNPJ     string    `json:"cnpj" validate:"omitempty,cnpj"`
	}

	AssignmentResult struct {
		Tenant *Tenant `json:"tenant"`
		IsNew  bool    `json:"isNew"`
	}

	// ConfirmRoleRequest redeems the token emailed when a role is waiting for verification.
	ConfirmRoleRequest struct {
		MasterID string    `json:"masterId" validate:"required,uuid4"`
		Email    string    `json:"email" validate:"required,email"`
		Role     role.Role `json:"role" validate:"required,role"`
		Token    string    `json:"token" validate:"required"`
	}

	// TenantRoles lists the active roles of an email in one tenant.
	TenantRoles struct {
		TenantID string      `json:"tenantId"`
		Roles    []role.Role `json:"roles"`
	}

	Service struct {
		repo              Repository
		mailSvc           core.EmailService
		appName           string
		optimisticLocking bool
		tokens            tokenGenerator
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{
		repo:              repo,
		mailSvc:           mailSvc,
		appName:           conf.AppName,
		optimisticLocking: conf.Tenant.OptimisticLocking,
		tokens:            newTokenGenerator(conf.SecretKey, conf.Tenant.VerificationTimeout),
	}
}

// ManageUserRoleAssignmentInTenant grants req.Role to req.Email.
// The tenant is looked up by MasterID; when it is absent or unknown a new tenant is created,
// which requires a CNPJ.
func (svc *Service) ManageUserRoleAssignmentInTenant(ctx context.Context, req RoleAssignmentRequest) (AssignmentResult, error) {
	req.Email = core.CleanString(req.Email, true /* lower */)
	req.MasterID = core.CleanString(req.MasterID, true /* lower */)
	if err := core.Validate.Struct(req); err != nil {
		return AssignmentResult{}, err
	}

	var t *Tenant
	if req.MasterID != "" {
		found, err := svc.repo.Find(ctx, req.MasterID)
		switch {
		case err == nil:
			t = found
		case !errors.Is(err, ErrTenantNotFound):
			return AssignmentResult{}, err
		}
	}

	if t == nil {
		if req.CNPJ == "" {
			return AssignmentResult{}, core.NewValidationError(errRegistrationIDRequired,
				core.FieldError{Field: "cnpj", Error: errRegistrationIDRequired.Error()})
		}
		nt, err := New(req.CNPJ)
		if err != nil {
			return AssignmentResult{}, err
		}
		if err := nt.AddTenantUserRole(req.Email, req.Role); err != nil {
			return AssignmentResult{}, err
		}
		if err := svc.repo.Create(ctx, nt); err != nil {
			return AssignmentResult{}, errors.Wrap(err, "creating tenant")
		}
		return AssignmentResult{Tenant: nt, IsNew: true}, nil
	}

	version := t.Version
	if err := t.AddTenantUserRole(req.Email, req.Role); err != nil {
		return AssignmentResult{}, err
	}
	if err := svc.save(ctx, t, version); err != nil {
		return AssignmentResult{}, err
	}
	svc.notifyPending(t, req.Email, req.Role)
	return AssignmentResult{Tenant: t}, nil
}

// ChangeUserRoleInTenant replaces oldRole by newRole for email in tenant masterID.
func (svc *Service) ChangeUserRoleInTenant(ctx context.Context, masterID, email string, oldRole, newRole role.Role) (*Tenant, error) {
	email = core.CleanString(email, true /* lower */)
	t, err := svc.GetTenant(ctx, masterID)
	if err != nil {
		return nil, err
	}

	version := t.Version
	if err := t.ChangeTenantUserRole(email, oldRole, newRole); err != nil {
		return nil, err
	}
	if oldRole == newRole {
		return t, nil
	}
	if err := svc.save(ctx, t, version); err != nil {
		return nil, err
	}
	svc.notifyPending(t, email, newRole)
	return t, nil
}

// GetTenant returns the tenant identified by id.
func (svc *Service) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	id = core.CleanString(id, true /* lower */)
	if id == "" {
		return nil, ErrTenantNotFound
	}
	return svc.repo.Find(ctx, id)
}

// VerifyTenantRole checks that email may act as r in tenant masterID.
// A role pending verification is still usable.
func (svc *Service) VerifyTenantRole(ctx context.Context, masterID, email string, r role.Role) error {
	email = core.CleanString(email, true /* lower */)
	t, err := svc.GetTenant(ctx, masterID)
	if err != nil {
		return err
	}
	ra, ok := t.Role(email, r)
	if !ok {
		return ErrRoleNotFound.WithDetail(core.Detail{"email": email, "role": r})
	}
	if !ra.IsActive() {
		return ErrInactiveRole.WithDetail(core.Detail{"email": email, "role": r})
	}
	return nil
}

// GetAvailableTenantsAndRoles lists, per tenant, the active roles of email.
// Tenants where email holds no active role are left out.
func (svc *Service) GetAvailableTenantsAndRoles(ctx context.Context, email string) ([]TenantRoles, error) {
	email = core.CleanString(email, true /* lower */)
	tenants, err := svc.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	available := make([]TenantRoles, 0, len(tenants))
	for _, t := range tenants {
		if roles := t.ActiveRoles(email); len(roles) > 0 {
			available = append(available, TenantRoles{TenantID: t.ID, Roles: roles})
		}
	}
	return available, nil
}

func (svc *Service) DeactivateUserRoleInTenant(ctx context.Context, masterID, email string, r role.Role) (*Tenant, error) {
	email = core.CleanString(email, true /* lower */)
	t, err := svc.GetTenant(ctx, masterID)
	if err != nil {
		return nil, err
	}
	version := t.Version
	if err := t.DeactivateTenantUserRole(email, r); err != nil {
		return nil, err
	}
	if err := svc.save(ctx, t, version); err != nil {
		return nil, err
	}
	return t, nil
}

func (svc *Service) MarkUserRoleVerified(ctx context.Context, masterID, email string, r role.Role) (*Tenant, error) {
	email = core.CleanString(email, true /* lower */)
	t, err := svc.GetTenant(ctx, masterID)
	if err != nil {
		return nil, err
	}
	version := t.Version
	if err := t.MarkTenantUserRoleVerified(email, r); err != nil {
		return nil, err
	}
	if err := svc.save(ctx, t, version); err != nil {
		return nil, err
	}
	return t, nil
}

// ConfirmUserRole verifies a pending role on behalf of its member, who proves it with the emailed token.
func (svc *Service) ConfirmUserRole(ctx context.Context, req ConfirmRoleRequest) (*Tenant, error) {
	req.Email = core.CleanString(req.Email, true /* lower */)
	req.MasterID = core.CleanString(req.MasterID, true /* lower */)
	req.Token = core.CleanString(req.Token)
	if err := core.Validate.Struct(req); err != nil {
		return nil, err
	}
	t, err := svc.GetTenant(ctx, req.MasterID)
	if err != nil {
		return nil, err
	}
	ra, ok := t.Role(req.Email, req.Role)
	if !ok {
		return nil, ErrRoleNotFound.WithDetail(core.Detail{"email": req.Email, "role": req.Role})
	}
	if err := svc.tokens.verifyToken(t, req.Email, req.Role, req.Token); err != nil {
		return nil, err
	}
	if !ra.IsActive() {
		return nil, ErrInactiveRole.WithDetail(core.Detail{"email": req.Email, "role": req.Role})
	}

	version := t.Version
	if err := t.MarkTenantUserRoleVerified(req.Email, req.Role); err != nil {
		return nil, err
	}
	if err := svc.save(ctx, t, version); err != nil {
		return nil, err
	}
	return t, nil
}

// RenameUserEmailInTenants moves the role history of oldEmail to newEmail in every tenant holding oldEmail.
// All tenants are checked before any of them is written.
func (svc *Service) RenameUserEmailInTenants(ctx context.Context, oldEmail, newEmail string) error {
	oldEmail = core.CleanString(oldEmail, true /* lower */)
	newEmail = core.CleanString(newEmail, true /* lower */)
	tenants, err := svc.repo.FindByEmail(ctx, oldEmail)
	if err != nil {
		return err
	}

	versions := make([]int, len(tenants))
	for i, t := range tenants {
		versions[i] = t.Version
		if err := t.RenameUserEmail(oldEmail, newEmail); err != nil {
			return err
		}
	}
	for i, t := range tenants {
		if err := svc.save(ctx, t, versions[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeactivateUserInTenants deactivates every active role of email in every tenant.
// It fails with ErrMasterMember, writing nothing, while email is the master of a tenant.
func (svc *Service) DeactivateUserInTenants(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	tenants, err := svc.repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	versions := make([]int, len(tenants))
	for i, t := range tenants {
		versions[i] = t.Version
		for _, r := range t.ActiveRoles(email) {
			if r == role.Master {
				return ErrMasterMember.WithDetail(core.Detail{"email": email, "masterId": t.ID})
			}
			if err := t.DeactivateTenantUserRole(email, r); err != nil {
				return err
			}
		}
	}
	for i, t := range tenants {
		if err := svc.save(ctx, t, versions[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteTenant removes the tenant identified by id.
func (svc *Service) DeleteTenant(ctx context.Context, id string) error {
	return errors.Wrap(svc.repo.Delete(ctx, core.CleanString(id, true /* lower */)), "deleting tenant")
}

func (svc *Service) save(ctx context.Context, t *Tenant, version int) error {
	if vr, ok := svc.repo.(VersionedRepository); ok && svc.optimisticLocking {
		return errors.Wrap(vr.UpdateVersion(ctx, t.ID, t, version), "updating tenant")
	}
	return errors.Wrap(svc.repo.Update(ctx, t.ID, t), "updating tenant")
}

// notifyPending emails the member when their role r is waiting for verification.
func (svc *Service) notifyPending(t *Tenant, email string, r role.Role) {
	if svc.mailSvc == nil {
		return
	}
	ra, ok := t.Role(email, r)
	if !ok || ra.Status() != StatusPendingVerification {
		return
	}
	token, err := svc.tokens.makeToken(t, email, r)
	if err != nil {
		return
	}
	msg, err := verificationMessage(svc.appName, t, email, r, token)
	if err != nil {
		return
	}
	svc.mailSvc.SendMessages(msg)
}

func verificationMessage(appName string, t *Tenant, email string, r role.Role, token string) (*core.EmailMessage, error) {
	to, err := mail.ParseAddress(email)
	if err != nil {
		return nil, err
	}
	return &core.EmailMessage{
		To:      []mail.Address{*to},
		Subject: fmt.Sprintf("[%s] Confirm your %s access", appName, r),
		Body: fmt.Sprintf(
			"Your %s role in school %s was reactivated and is waiting for verification.\n"+
				"Confirm it with the verification token below, or ask an administrator of the school to do it.\n\n"+
				"Verification token: %s\n",
			r, t.ID, token,
		),
	}, nil
}
