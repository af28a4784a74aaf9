package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/role"
	"github.com/escolar/backend/core/tenant"
)

func init() {
	// hashing at the default cost makes test suites crawl
	credential.HashCost = bcrypt.MinCost
}

// NewConfig returns a test configuration that does not depend on the environment.
func NewConfig() *core.Config {
	conf := &core.Config{
		Env:       "TEST",
		TestMode:  true,
		AppName:   "Escolar",
		SecretKey: "test-secret",
	}
	conf.DefaultFromEmail = mail.Address{Name: "Escolar", Address: "noreply@escolar.test"}
	conf.Server.SessionExpirationDelta = time.Hour
	conf.Database.Driver = "inmem"
	return conf
}

func CreateCredential(t *testing.T, repo credential.Repository, email, pwd string, r role.Role, masterID string) credential.Credential {
	now := time.Now().UTC()
	cred := credential.Credential{
		Email:     email,
		Password:  pwd,
		Role:      r,
		MasterID:  masterID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := cred.HashPassword(); err != nil {
		t.Fatalf("CreateCredential() failed: %v", err)
	}
	if err := repo.Create(context.Background(), cred); err != nil {
		t.Fatalf("CreateCredential() failed: %v", err)
	}
	return cred
}

// CreateTenant stores a tenant where every given email holds an active r.
func CreateTenant(t *testing.T, repo tenant.Repository, cnpj string, r role.Role, emails ...string) *tenant.Tenant {
	tnt, err := tenant.New(cnpj)
	if err != nil {
		t.Fatalf("CreateTenant() failed: %v", err)
	}
	for _, email := range emails {
		if err := tnt.AddTenantUserRole(email, r); err != nil {
			t.Fatalf("CreateTenant() failed: %v", err)
		}
	}
	if err := repo.Create(context.Background(), tnt); err != nil {
		t.Fatalf("CreateTenant() failed: %v", err)
	}
	return tnt
}
