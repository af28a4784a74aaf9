package main

import (
	"context"

	"github.com/escolar/backend/core/credential"
)

func (cli *commandLine) resetPassword(email, pwd string) error {
	_, err := cli.credSvc.Update(context.Background(), email, credential.UpdateCredential{Password: pwd})
	return err
}
