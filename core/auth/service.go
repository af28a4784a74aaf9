// Package auth implements the two-phase login and the credential self-service use cases.
//
// Phase 1 (Discover) lists the tenants and roles a credential may act as.
// Phase 2 (CreateSession) mints a token scoped to one of those (tenant, role) pairs.
// No state is kept between the phases: the caller re-submits its credentials.
package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/role"
	"github.com/escolar/backend/core/session"
	"github.com/escolar/backend/core/tenant"
)

var (
	// errors
	ErrNoTenantAvailable = core.NewAccessDeniedError("no tenant available for credentials")

	errPasswordRequired = "password is required to create a new credential"
)

type (
	DiscoverRequest struct {
		Email    string    `json:"email" validate:"required,email"`
		Password string    `json:"password" validate:"required"`
		Role     role.Role `json:"role" validate:"omitempty,role"`
	}

	SessionRequest struct {
		Email    string    `json:"email" validate:"required,email"`
		Password string    `json:"password" validate:"required"`
		MasterID string    `json:"masterId" validate:"required,uuid4"`
		Role     role.Role `json:"role" validate:"required,role"`
	}

	Session struct {
		Token   string          `json:"token"`
		Payload session.Payload `json:"payload"`
	}

	RegisterRequest struct {
		Email    string    `json:"email" validate:"required,email"`
		Password string    `json:"password" validate:"required"`
		Role     role.Role `json:"role" validate:"required,role"`
		MasterID string    `json:"masterId" validate:"omitempty,uuid4"`
		CNPJ     string    `json:"cnpj" validate:"omitempty,cnpj"`
	}

	Registration struct {
		Credential credential.Credential `json:"credential"`
		Tenant     *tenant.Tenant        `json:"tenant"`
		IsNew      bool                  `json:"isNew"`
	}

	// MemberRequest grants a role in an existing tenant.
	// Password is only used, and then required, when Email has no credential yet.
	MemberRequest struct {
		Email    string    `json:"email" validate:"required,email"`
		Role     role.Role `json:"role" validate:"required,role"`
		Password string    `json:"password"`
	}

	Service struct {
		creds   *credential.Service
		tenants *tenant.Service
		signer  session.Signer
		ttl     time.Duration
	}
)

func NewService(creds *credential.Service, tenants *tenant.Service, signer session.Signer, conf *core.Config) *Service {
	return &Service{
		creds:   creds,
		tenants: tenants,
		signer:  signer,
		ttl:     conf.Server.SessionExpirationDelta,
	}
}

func clean(email *string, r *role.Role, masterID *string) {
	*email = core.CleanString(*email, true /* lower */)
	if r != nil {
		*r = role.Role(core.CleanString(string(*r), true /* lower */))
	}
	if masterID != nil {
		*masterID = core.CleanString(*masterID, true /* lower */)
	}
}

// Discover checks the credentials and returns the tenants where they hold an active role,
// keeping only req.Role when it is given.
func (svc *Service) Discover(ctx context.Context, req DiscoverRequest) ([]tenant.TenantRoles, error) {
	clean(&req.Email, &req.Role, nil)
	if err := core.Validate.Struct(req); err != nil {
		return nil, err
	}
	if _, err := svc.creds.Authenticate(ctx, req.Email, req.Password); err != nil {
		return nil, err
	}

	available, err := svc.tenants.GetAvailableTenantsAndRoles(ctx, req.Email)
	if err != nil {
		return nil, errors.Wrap(err, "listing tenants")
	}
	if req.Role != "" {
		available = filterRole(available, req.Role)
	}
	if len(available) == 0 {
		return nil, ErrNoTenantAvailable
	}
	return available, nil
}

// CreateSession checks the credentials again and issues a token scoped to (req.MasterID, req.Role).
func (svc *Service) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	clean(&req.Email, &req.Role, &req.MasterID)
	if err := core.Validate.Struct(req); err != nil {
		return Session{}, err
	}
	cred, err := svc.creds.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return Session{}, err
	}
	if err := svc.tenants.VerifyTenantRole(ctx, req.MasterID, cred.Email, req.Role); err != nil {
		return Session{}, err
	}

	payload := session.Payload{Email: cred.Email, MasterID: req.MasterID, Role: req.Role}
	token, err := svc.signer.Sign(payload, svc.ttl)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, Payload: payload}, nil
}

// Register grants req.Role in a tenant to req.Email, creating the credential when it does not exist yet.
// An existing credential is never overwritten: its password must match.
func (svc *Service) Register(ctx context.Context, req RegisterRequest) (Registration, error) {
	clean(&req.Email, &req.Role, &req.MasterID)
	if err := core.Validate.Struct(req); err != nil {
		return Registration{}, err
	}

	cred, err := svc.creds.Get(ctx, req.Email)
	isNewCred := errors.Is(err, credential.ErrNotFound)
	switch {
	case isNewCred:
		nc := credential.NewCredential{Email: req.Email, Password: req.Password, Role: req.Role, MasterID: req.MasterID}
		if err := nc.Validate(); err != nil {
			return Registration{}, err
		}
	case err != nil:
		return Registration{}, err
	case !cred.ComparePassword(req.Password):
		return Registration{}, credential.ErrInvalidCredentials
	}

	res, err := svc.tenants.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email:    req.Email,
		Role:     req.Role,
		MasterID: req.MasterID,
		CNPJ:     req.CNPJ,
	})
	if err != nil {
		return Registration{}, err
	}

	if isNewCred {
		cred, err = svc.creds.Create(ctx, credential.NewCredential{
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
			MasterID: res.Tenant.ID,
		})
		if err != nil {
			return Registration{}, svc.undoAssignment(ctx, res, req.Email, req.Role, errors.Wrap(err, "creating credential"))
		}
	}
	return Registration{Credential: cred, Tenant: res.Tenant, IsNew: res.IsNew}, nil
}

// undoAssignment reverts the role granted in res after a later step failed with cause.
// A tenant created for the assignment is deleted; otherwise the role is deactivated.
func (svc *Service) undoAssignment(ctx context.Context, res tenant.AssignmentResult, email string, r role.Role, cause error) error {
	var err error
	if res.IsNew {
		err = svc.tenants.DeleteTenant(ctx, res.Tenant.ID)
	} else {
		_, err = svc.tenants.DeactivateUserRoleInTenant(ctx, res.Tenant.ID, email, r)
	}
	if err != nil {
		return errors.Wrapf(cause, "reverting role assignment: %v", err)
	}
	return cause
}

// AddMember grants req.Role in tenant masterID to req.Email, creating its credential when needed.
func (svc *Service) AddMember(ctx context.Context, masterID string, req MemberRequest) (*tenant.Tenant, error) {
	masterID = core.CleanString(masterID, true /* lower */)
	clean(&req.Email, &req.Role, nil)
	if err := core.Validate.Struct(req); err != nil {
		return nil, err
	}

	// look the tenant and the credential up at the same time
	var isNewCred bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := svc.tenants.GetTenant(gctx, masterID)
		return err
	})
	g.Go(func() error {
		_, err := svc.creds.Get(gctx, req.Email)
		if errors.Is(err, credential.ErrNotFound) {
			isNewCred = true
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if isNewCred {
		if req.Password == "" {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "password", Error: errPasswordRequired})
		}
		nc := credential.NewCredential{Email: req.Email, Password: req.Password, Role: req.Role, MasterID: masterID}
		if err := nc.Validate(); err != nil {
			return nil, err
		}
	}

	res, err := svc.tenants.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email:    req.Email,
		Role:     req.Role,
		MasterID: masterID,
	})
	if err != nil {
		return nil, err
	}
	if isNewCred {
		if _, err := svc.creds.Create(ctx, credential.NewCredential{
			Email:    req.Email,
			Password: req.Password,
			Role:     req.Role,
			MasterID: masterID,
		}); err != nil {
			return nil, svc.undoAssignment(ctx, res, req.Email, req.Role, errors.Wrap(err, "creating credential"))
		}
	}
	return res.Tenant, nil
}

// UpdateCredential updates the credential of email and carries an email change over to its tenants.
func (svc *Service) UpdateCredential(ctx context.Context, email string, uc credential.UpdateCredential) (credential.Credential, error) {
	email = core.CleanString(email, true /* lower */)
	cred, err := svc.creds.Update(ctx, email, uc)
	if err != nil {
		return credential.Credential{}, err
	}
	if cred.Email == email {
		return cred, nil
	}

	if err := svc.tenants.RenameUserEmailInTenants(ctx, email, cred.Email); err != nil {
		// put the old email back so credential and tenants stay in sync
		if _, rbErr := svc.creds.Update(ctx, cred.Email, credential.UpdateCredential{Email: email}); rbErr != nil {
			return credential.Credential{}, errors.Wrapf(err, "rolling back email change: %v", rbErr)
		}
		return credential.Credential{}, err
	}
	return cred, nil
}

// DeleteCredential deactivates the roles of email in every tenant, then deletes its credential.
// The master of a tenant cannot be deleted.
func (svc *Service) DeleteCredential(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	if _, err := svc.creds.Get(ctx, email); err != nil {
		return err
	}
	if err := svc.tenants.DeactivateUserInTenants(ctx, email); err != nil {
		return err
	}
	return svc.creds.Delete(ctx, email)
}

// CredentialOwner returns the id of the tenant the credential of email was created for,
// or "" when email has no credential.
func (svc *Service) CredentialOwner(ctx context.Context, email string) (string, error) {
	cred, err := svc.creds.Get(ctx, email)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		return "", nil
	case err != nil:
		return "", err
	}
	return cred.MasterID, nil
}

func filterRole(available []tenant.TenantRoles, r role.Role) []tenant.TenantRoles {
	filtered := make([]tenant.TenantRoles, 0, len(available))
	for _, tr := range available {
		for _, held := range tr.Roles {
			if held == r {
				filtered = append(filtered, tenant.TenantRoles{TenantID: tr.TenantID, Roles: []role.Role{r}})
				break
			}
		}
	}
	return filtered
}
