package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/credential"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
	errNoDB = errors.New("migrate needs the postgres database driver")
)

type commandLine struct {
	db      *sql.DB
	authSvc *auth.Service
	credSvc *credential.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, ...)")
	fmt.Println("  createmaster -email EMAIL -cnpj CNPJ - create a tenant and its master credential")
	fmt.Println("  resetpassword -email EMAIL - reset a credential's password")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createMasterCmd := flag.NewFlagSet("createmaster", flag.ContinueOnError)
	createMasterEmail := createMasterCmd.String("email", "", "The master's email. The password will be prompted next.")
	createMasterCNPJ := createMasterCmd.String("cnpj", "", "The new tenant's CNPJ.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ContinueOnError)
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The credential's email. The password will be prompted next.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "createmaster":
		if err := createMasterCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createMasterEmail == "" || *createMasterCNPJ == "" {
			createMasterCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createMasterCmd.Usage()
			return errHelp
		}
		return cli.createMaster(*createMasterEmail, *createMasterCNPJ, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	default:
		cli.printUsage()
		return errHelp
	}
}

func promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
