package main

import (
	"context"
	"fmt"

	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/role"
)

// createMaster registers a new tenant owned by email.
func (cli *commandLine) createMaster(email, cnpj, pwd string) error {
	reg, err := cli.authSvc.Register(context.Background(), auth.RegisterRequest{
		Email:    email,
		Password: pwd,
		Role:     role.Master,
		CNPJ:     cnpj,
	})
	if err != nil {
		return err
	}
	fmt.Printf("tenant %s created, master %s\n", reg.Tenant.ID, reg.Credential.Email)
	return nil
}
