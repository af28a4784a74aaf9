package tenant_test

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
	"github.com/escolar/backend/core/tenant"
	emailsvc "github.com/escolar/backend/services/email"
	inmemdb "github.com/escolar/backend/storage/database/inmem"
)

const (
	cnpj      = "12.345.678/0001-95"
	otherCNPJ = "11.222.333/0001-81"
)

type fixture struct {
	svc  *tenant.Service
	repo tenant.Repository
	mail *emailsvc.ConsoleServiceMock
}

func setup(optimisticLocking bool) fixture {
	conf := &core.Config{AppName: "Escolar"}
	conf.Tenant.OptimisticLocking = optimisticLocking
	repo := inmemdb.NewTenantRepository(inmemdb.Open())
	mail := emailsvc.NewConsoleServiceMock(conf)
	return fixture{svc: tenant.NewService(repo, mail, conf), repo: repo, mail: mail}
}

func (f fixture) createTenant(t *testing.T, email string, r role.Role) *tenant.Tenant {
	res, err := f.svc.ManageUserRoleAssignmentInTenant(context.Background(), tenant.RoleAssignmentRequest{
		Email: email, Role: r, CNPJ: cnpj,
	})
	require.NoError(t, err)
	return res.Tenant
}

func TestService_ManageUserRoleAssignmentInTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("creates tenant", func(t *testing.T) {
		f := setup(false)
		res, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "a@x.com", Role: role.Administrator, CNPJ: cnpj,
		})
		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.True(t, core.IsUUID4(res.Tenant.ID))
		assert.Equal(t, []tenant.RoleAssignment{{Role: role.Administrator, State: tenant.StateActive}}, res.Tenant.Roles("a@x.com"))

		stored, err := f.repo.Find(ctx, res.Tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, res.Tenant.Entries(), stored.Entries())
	})

	t.Run("unknown masterId creates a new tenant", func(t *testing.T) {
		f := setup(false)
		res, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "a@x.com", Role: role.Administrator, CNPJ: cnpj,
			MasterID: "5b1f8f8e-8a0e-4c56-9d2c-1b2c3d4e5f60",
		})
		require.NoError(t, err)
		assert.True(t, res.IsNew)
		assert.NotEqual(t, "5b1f8f8e-8a0e-4c56-9d2c-1b2c3d4e5f60", res.Tenant.ID)
	})

	t.Run("creation requires a cnpj", func(t *testing.T) {
		f := setup(false)
		_, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "a@x.com", Role: role.Administrator,
		})
		require.Error(t, err)
		assert.Equal(t, core.KindValidation, core.KindOf(err))
		assert.Equal(t, "registration id mandatory to create a new tenant", err.Error())
	})

	t.Run("invalid request", func(t *testing.T) {
		f := setup(false)
		for _, req := range []tenant.RoleAssignmentRequest{
			{Email: "a@", Role: role.Teacher, CNPJ: cnpj},
			{Email: "a@x.com", Role: "janitor", CNPJ: cnpj},
			{Email: "a@x.com", Role: role.Teacher, CNPJ: "12.345.678/0001-00"},
			{Email: "a@x.com", Role: role.Teacher, MasterID: "nope"},
		} {
			_, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, req)
			assert.Equal(t, core.KindValidation, core.KindOf(err), "%+v", req)
		}
	})

	t.Run("adds to existing tenant", func(t *testing.T) {
		f := setup(false)
		tnt := f.createTenant(t, "a@x.com", role.Master)

		res, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: " B@X.com ", Role: role.Teacher, MasterID: tnt.ID,
		})
		require.NoError(t, err)
		assert.False(t, res.IsNew)
		assert.Equal(t, tnt.ID, res.Tenant.ID)
		assert.Equal(t, []role.Role{role.Teacher}, res.Tenant.ActiveRoles("b@x.com"))

		// twice in a row fails
		_, err = f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "b@x.com", Role: role.Teacher, MasterID: tnt.ID,
		})
		assert.True(t, errors.Is(err, tenant.ErrRoleAlreadyActive))
		assert.Empty(t, f.mail.SentMessages())
	})

	t.Run("reactivation sends a verification notice", func(t *testing.T) {
		f := setup(false)
		tnt := f.createTenant(t, "a@x.com", role.Master)
		_, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "b@x.com", Role: role.Teacher, MasterID: tnt.ID,
		})
		require.NoError(t, err)
		_, err = f.svc.DeactivateUserRoleInTenant(ctx, tnt.ID, "b@x.com", role.Teacher)
		require.NoError(t, err)

		res, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "b@x.com", Role: role.Teacher, MasterID: tnt.ID,
		})
		require.NoError(t, err)
		ra, _ := res.Tenant.Role("b@x.com", role.Teacher)
		assert.Equal(t, tenant.StatusPendingVerification, ra.Status())

		sent := f.mail.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, "b@x.com", sent[0].To[0].Address)
	})
}

func TestService_ChangeUserRoleInTenant(t *testing.T) {
	ctx := context.Background()
	f := setup(false)
	tnt := f.createTenant(t, "a@x.com", role.Student)

	// a@x.com once was a teacher
	_, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Teacher, MasterID: tnt.ID,
	})
	require.NoError(t, err)
	_, err = f.svc.DeactivateUserRoleInTenant(ctx, tnt.ID, "a@x.com", role.Teacher)
	require.NoError(t, err)

	got, err := f.svc.ChangeUserRoleInTenant(ctx, tnt.ID, "a@x.com", role.Student, role.Teacher)
	require.NoError(t, err)
	want := []tenant.RoleAssignment{
		{Role: role.Student, State: tenant.StateInactive},
		{Role: role.Teacher, State: tenant.StateActive, NeedVerification: true},
	}
	assert.Equal(t, want, got.Roles("a@x.com"))

	stored, err := f.repo.Find(ctx, tnt.ID)
	require.NoError(t, err)
	assert.Equal(t, want, stored.Roles("a@x.com"))
	assert.Len(t, f.mail.SentMessages(), 1)

	// same role: nothing is written
	version := stored.Version
	_, err = f.svc.ChangeUserRoleInTenant(ctx, tnt.ID, "a@x.com", role.Teacher, role.Teacher)
	require.NoError(t, err)
	stored, _ = f.repo.Find(ctx, tnt.ID)
	assert.Equal(t, version, stored.Version)

	_, err = f.svc.ChangeUserRoleInTenant(ctx, tnt.ID, "a@x.com", role.Teacher, role.Master)
	assert.Equal(t, core.KindAccessDenied, core.KindOf(err))

	_, err = f.svc.ChangeUserRoleInTenant(ctx, "", "a@x.com", role.Student, role.Teacher)
	assert.True(t, errors.Is(err, tenant.ErrTenantNotFound))
}

func TestService_GetTenant(t *testing.T) {
	ctx := context.Background()
	f := setup(false)
	tnt := f.createTenant(t, "a@x.com", role.Master)

	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "empty id", id: "", wantErr: tenant.ErrTenantNotFound},
		{name: "unknown id", id: "5b1f8f8e-8a0e-4c56-9d2c-1b2c3d4e5f60", wantErr: tenant.ErrTenantNotFound},
		{name: "found", id: tnt.ID},
		{name: "found, upper cased", id: " " + strings.ToUpper(tnt.ID) + " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.GetTenant(ctx, tt.id)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tnt.ID, got.ID)
		})
	}
}

func TestService_VerifyTenantRole(t *testing.T) {
	ctx := context.Background()
	f := setup(false)
	tnt := f.createTenant(t, "a@x.com", role.Master)
	for _, r := range []role.Role{role.Teacher, role.Worker} {
		_, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
			Email: "b@x.com", Role: r, MasterID: tnt.ID,
		})
		require.NoError(t, err)
	}
	_, err := f.svc.DeactivateUserRoleInTenant(ctx, tnt.ID, "b@x.com", role.Worker)
	require.NoError(t, err)

	tests := []struct {
		name     string
		masterID string
		email    string
		role     role.Role
		wantErr  error
	}{
		{name: "unknown tenant", masterID: "5b1f8f8e-8a0e-4c56-9d2c-1b2c3d4e5f60", email: "b@x.com", role: role.Teacher, wantErr: tenant.ErrTenantNotFound},
		{name: "no record", masterID: tnt.ID, email: "b@x.com", role: role.Student, wantErr: tenant.ErrRoleNotFound},
		{name: "unknown email", masterID: tnt.ID, email: "z@x.com", role: role.Teacher, wantErr: tenant.ErrRoleNotFound},
		{name: "inactive record", masterID: tnt.ID, email: "b@x.com", role: role.Worker, wantErr: tenant.ErrInactiveRole},
		{name: "active record", masterID: tnt.ID, email: "b@x.com", role: role.Teacher},
		{name: "master", masterID: tnt.ID, email: "a@x.com", role: role.Master},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.VerifyTenantRole(ctx, tt.masterID, tt.email, tt.role)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
	assert.Equal(t, core.KindInactiveTenant, core.KindOf(f.svc.VerifyTenantRole(ctx, tnt.ID, "b@x.com", role.Worker)))
}

func TestService_GetAvailableTenantsAndRoles(t *testing.T) {
	ctx := context.Background()
	f := setup(false)

	first := f.createTenant(t, "a@x.com", role.Teacher)
	_, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Worker, MasterID: first.ID,
	})
	require.NoError(t, err)
	_, err = f.svc.DeactivateUserRoleInTenant(ctx, first.ID, "a@x.com", role.Worker)
	require.NoError(t, err)

	res, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Student, CNPJ: otherCNPJ,
	})
	require.NoError(t, err)
	second := res.Tenant

	// only an inactive record here
	res, err = f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Administrator, CNPJ: cnpj,
	})
	require.NoError(t, err)
	_, err = f.svc.DeactivateUserRoleInTenant(ctx, res.Tenant.ID, "a@x.com", role.Administrator)
	require.NoError(t, err)

	got, err := f.svc.GetAvailableTenantsAndRoles(ctx, "A@x.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []tenant.TenantRoles{
		{TenantID: first.ID, Roles: []role.Role{role.Teacher}},
		{TenantID: second.ID, Roles: []role.Role{role.Student}},
	}, got)

	got, err = f.svc.GetAvailableTenantsAndRoles(ctx, "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_MarkUserRoleVerified(t *testing.T) {
	ctx := context.Background()
	f := setup(false)
	tnt := f.createTenant(t, "a@x.com", role.Teacher)
	_, err := f.svc.DeactivateUserRoleInTenant(ctx, tnt.ID, "a@x.com", role.Teacher)
	require.NoError(t, err)

	_, err = f.svc.MarkUserRoleVerified(ctx, tnt.ID, "a@x.com", role.Teacher)
	assert.Equal(t, core.KindInactiveTenant, core.KindOf(err))

	_, err = f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Teacher, MasterID: tnt.ID,
	})
	require.NoError(t, err)

	got, err := f.svc.MarkUserRoleVerified(ctx, tnt.ID, "a@x.com", role.Teacher)
	require.NoError(t, err)
	ra, _ := got.Role("a@x.com", role.Teacher)
	assert.Equal(t, tenant.StatusActive, ra.Status())
}

var tokenRe = regexp.MustCompile(`Verification token: (\S+)`)

func TestService_ConfirmUserRole(t *testing.T) {
	ctx := context.Background()
	f := setup(false)
	tnt := f.createTenant(t, "a@x.com", role.Teacher)
	_, err := f.svc.DeactivateUserRoleInTenant(ctx, tnt.ID, "a@x.com", role.Teacher)
	require.NoError(t, err)
	_, err = f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Teacher, MasterID: tnt.ID,
	})
	require.NoError(t, err)

	sent := f.mail.SentMessages()
	require.Len(t, sent, 1)
	match := tokenRe.FindStringSubmatch(sent[0].Body)
	require.Len(t, match, 2)
	token := match[1]

	req := func(email string, r role.Role, token string) tenant.ConfirmRoleRequest {
		return tenant.ConfirmRoleRequest{MasterID: tnt.ID, Email: email, Role: r, Token: token}
	}

	_, err = f.svc.ConfirmUserRole(ctx, req("a@x.com", role.Teacher, ""))
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	_, err = f.svc.ConfirmUserRole(ctx, req("a@x.com", role.Student, token))
	assert.True(t, errors.Is(err, tenant.ErrRoleNotFound))

	_, err = f.svc.ConfirmUserRole(ctx, req("a@x.com", role.Teacher, "HE4TS-forged"))
	assert.True(t, errors.Is(err, tenant.ErrInvalidVerificationToken))

	got, err := f.svc.ConfirmUserRole(ctx, req("A@x.com", role.Teacher, token))
	require.NoError(t, err)
	ra, _ := got.Role("a@x.com", role.Teacher)
	assert.Equal(t, tenant.StatusActive, ra.Status())

	// tokens are single use
	_, err = f.svc.ConfirmUserRole(ctx, req("a@x.com", role.Teacher, token))
	assert.True(t, errors.Is(err, tenant.ErrInvalidVerificationToken))
}

func TestService_RenameUserEmailInTenants(t *testing.T) {
	ctx := context.Background()
	f := setup(false)
	first := f.createTenant(t, "a@x.com", role.Teacher)
	res, err := f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "a@x.com", Role: role.Student, CNPJ: otherCNPJ,
	})
	require.NoError(t, err)
	second := res.Tenant
	_, err = f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "taken@x.com", Role: role.Worker, MasterID: second.ID,
	})
	require.NoError(t, err)

	// conflict in one tenant: nothing is written
	err = f.svc.RenameUserEmailInTenants(ctx, "a@x.com", "taken@x.com")
	assert.Equal(t, core.KindConflict, core.KindOf(err))
	stored, _ := f.repo.Find(ctx, first.ID)
	assert.True(t, stored.HasEmail("a@x.com"))

	require.NoError(t, f.svc.RenameUserEmailInTenants(ctx, "a@x.com", "new@x.com"))
	for _, id := range []string{first.ID, second.ID} {
		stored, err := f.repo.Find(ctx, id)
		require.NoError(t, err)
		assert.False(t, stored.HasEmail("a@x.com"))
		assert.True(t, stored.HasEmail("new@x.com"))
	}
}

func TestService_OptimisticLocking(t *testing.T) {
	ctx := context.Background()
	f := setup(true)
	tnt := f.createTenant(t, "a@x.com", role.Master)

	// a concurrent writer bumps the stored version
	stale, err := f.repo.Find(ctx, tnt.ID)
	require.NoError(t, err)
	_, err = f.svc.ManageUserRoleAssignmentInTenant(ctx, tenant.RoleAssignmentRequest{
		Email: "b@x.com", Role: role.Teacher, MasterID: tnt.ID,
	})
	require.NoError(t, err)

	err = f.repo.(tenant.VersionedRepository).UpdateVersion(ctx, stale.ID, stale, stale.Version)
	assert.True(t, errors.Is(err, tenant.ErrStaleTenant))
	assert.Equal(t, core.KindConflict, core.KindOf(err))

	fresh, err := f.repo.Find(ctx, tnt.ID)
	require.NoError(t, err)
	assert.Equal(t, stale.Version+1, fresh.Version)
	assert.True(t, fresh.HasEmail("b@x.com"))
}
