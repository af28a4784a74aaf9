package credential

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("credential not found")
	ErrEmailExists        = core.NewConflictError("a credential with this email already exists")
	ErrInvalidCredentials = core.NewUnauthenticatedError("invalid credentials")

	dummyOnce sync.Once
	dummy     Credential
)

type (
	Repository interface {
		Find(ctx context.Context, email string) (Credential, error)
		Create(ctx context.Context, cred Credential) error
		// Update saves cred in place of the credential currently stored under email.
		Update(ctx context.Context, cred Credential, email string) error
		Delete(ctx context.Context, email string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ctx context.Context, nc NewCredential) (Credential, error) {
	if err := nc.Validate(); err != nil {
		return Credential{}, err
	}
	if err := svc.checkEmailFree(ctx, nc.Email); err != nil {
		return Credential{}, err
	}

	now := NowFunc().UTC()
	cred := Credential{
		Email:     nc.Email,
		Password:  nc.Password,
		Role:      nc.Role,
		MasterID:  nc.MasterID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := cred.HashPassword(); err != nil {
		return Credential{}, err
	}
	if err := svc.repo.Create(ctx, cred); err != nil {
		return Credential{}, errors.Wrap(err, "creating credential")
	}
	return cred, nil
}

func (svc *Service) Get(ctx context.Context, email string) (Credential, error) {
	cred, err := svc.repo.Find(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return Credential{}, errors.Wrap(err, "finding credential")
	}
	return cred, nil
}

// Update applies uc to the credential stored under email and returns the result.
func (svc *Service) Update(ctx context.Context, email string, uc UpdateCredential) (Credential, error) {
	email = core.CleanString(email, true /* lower */)
	cred, err := svc.Get(ctx, email)
	if err != nil {
		return Credential{}, err
	}
	if err := uc.Validate(cred); err != nil {
		return Credential{}, err
	}
	if uc.Email != email {
		if err := svc.checkEmailFree(ctx, uc.Email); err != nil {
			return Credential{}, err
		}
	}

	cred.Email = uc.Email
	cred.Role = uc.Role
	cred.UpdatedAt = NowFunc().UTC()
	if uc.Password != "" {
		cred.Password = uc.Password
		if err := cred.HashPassword(); err != nil {
			return Credential{}, err
		}
	}
	if err := svc.repo.Update(ctx, cred, email); err != nil {
		return Credential{}, errors.Wrap(err, "updating credential")
	}
	return cred, nil
}

func (svc *Service) Delete(ctx context.Context, email string) error {
	return errors.Wrap(svc.repo.Delete(ctx, core.CleanString(email, true /* lower */)), "deleting credential")
}

// Authenticate returns the credential of email when pwd matches.
// Unknown emails and wrong passwords fail alike with ErrInvalidCredentials.
func (svc *Service) Authenticate(ctx context.Context, email, pwd string) (Credential, error) {
	cred, err := svc.Get(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			compareDummy(pwd)
			return Credential{}, ErrInvalidCredentials
		}
		return Credential{}, err
	}
	if !cred.ComparePassword(pwd) {
		return Credential{}, ErrInvalidCredentials
	}
	return cred, nil
}

func (svc *Service) checkEmailFree(ctx context.Context, email string) error {
	_, err := svc.repo.Find(ctx, email)
	switch {
	case err == nil:
		return ErrEmailExists.WithDetail(core.Detail{"email": email})
	case errors.Is(err, ErrNotFound):
		return nil
	default:
		return errors.Wrap(err, "finding credential")
	}
}

// compareDummy spends one bcrypt comparison so unknown emails answer as slowly as wrong passwords.
func compareDummy(pwd string) {
	dummyOnce.Do(func() {
		dummy = Credential{Password: "no-such-credential"}
		_ = dummy.HashPassword()
	})
	dummy.ComparePassword(pwd)
}
