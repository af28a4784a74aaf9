package main

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/role"
	"github.com/escolar/backend/core/tenant"
	"github.com/escolar/backend/core/session"
	emailsvc "github.com/escolar/backend/services/email"
	inmemdb "github.com/escolar/backend/storage/database/inmem"
	"github.com/escolar/backend/tests"
)

var (
	credRepo   credential.Repository
	tenantRepo tenant.Repository
)

func setup(t *testing.T, db *sql.DB) *commandLine {
	conf := testutil.NewConfig()

	// set up DB & repos
	mem := inmemdb.Open()
	credRepo = inmemdb.NewCredentialRepository(mem)
	tenantRepo = inmemdb.NewTenantRepository(mem)

	// set up services
	credSvc := credential.NewService(credRepo)
	tenantSvc := tenant.NewService(tenantRepo, emailsvc.NewConsoleServiceMock(conf), conf)

	// start CLI
	return &commandLine{
		db:      db,
		authSvc: auth.NewService(credSvc, tenantSvc, session.NewHS256Signer(conf), conf),
		credSvc: credSvc,
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	wantKind   core.ErrorKind
	extra      interface{}
}

func checkRunErr(t *testing.T, tt cliTest, err error) {
	if err == nil {
		if tt.wantErr != nil || tt.wantErrStr != "" || tt.wantKind != core.KindUnknown {
			t.Errorf("cli.run() error = nil, wantErr %v%s", tt.wantErr, tt.wantErrStr)
		}
		return
	}
	if tt.wantErr != nil {
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
		}
	} else if tt.wantErrStr != "" {
		if err.Error() != tt.wantErrStr {
			t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
		}
	} else if tt.wantKind != core.KindUnknown {
		if kind := core.KindOf(err); kind != tt.wantKind {
			t.Errorf("core.KindOf(cli.run()) = %v, wantKind %v", kind, tt.wantKind)
		}
	} else {
		t.Errorf("cli.run() unexpected error = %v", err)
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t, new(sql.DB))

	origRun := gooseRunFunc
	defer func() { gooseRunFunc = origRun }()
	gooseRunFunc = func(db *sql.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to":
			if len(args) == 0 {
				return fmt.Errorf("up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		case "down-to":
			if len(args) == 0 {
				return fmt.Errorf("down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION")
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "down-to: non-int arg", args: []string{"migrate", "down-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "attendance", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	t.Run("no database", func(t *testing.T) {
		cli := setup(t, nil)
		checkRunErr(t, cliTest{wantErr: errNoDB}, cli.run([]string{"admin", "migrate", "up"}))
	})
}

func Test_commandLine_createMaster(t *testing.T) {
	cli := setup(t, nil)

	origRead := readPasswordFunc
	defer func() { readPasswordFunc = origRead }()

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"createmaster"}, wantErr: errHelp},
		{name: "email only", args: []string{"createmaster", "-email", "owner@escola.test"}, wantErr: errHelp},
		{
			name: "no password", args: []string{"createmaster", "-email", "owner@escola.test", "-cnpj", "12.345.678/0001-95"},
			wantErr: errHelp,
		},
		{
			name: "invalid cnpj", args: []string{"createmaster", "-email", "owner@escola.test", "-cnpj", "11.111.111/1111-11"},
			extra: extra{pwd: "S3cure-pass"}, wantKind: core.KindValidation,
		},
		{
			name: "created", args: []string{"createmaster", "-email", "Owner@Escola.test", "-cnpj", "12.345.678/0001-95"},
			extra: extra{pwd: "S3cure-pass"},
		},
		{
			name: "wrong password for existing credential", args: []string{"createmaster", "-email", "owner@escola.test", "-cnpj", "11.222.333/0001-81"},
			extra: extra{pwd: "0ther-pass"}, wantErr: credential.ErrInvalidCredentials,
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			checkRunErr(t, tt, cli.run(args))
		})
	}

	available, err := tenantRepo.FindByEmail(context.Background(), "owner@escola.test")
	if err != nil {
		t.Fatalf("FindByEmail() failed, %v", err)
	}
	if len(available) != 1 {
		t.Fatalf("tenants = %d; want 1", len(available))
	}
	if got := available[0].ActiveRoles("owner@escola.test"); len(got) != 1 || got[0] != role.Master {
		t.Errorf("ActiveRoles() = %v; want [master]", got)
	}
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t, nil)

	cred := testutil.CreateCredential(t, credRepo, "awe@escola.test", "S3cure-pass", role.Teacher, "")

	origRead := readPasswordFunc
	defer func() { readPasswordFunc = origRead }()

	type extra struct {
		pwd string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@escola.test"}, wantErr: errHelp},
		{
			name: "credential not found", args: []string{"resetpassword", "-email", "lol@escola.test"},
			extra: extra{pwd: "N3w-passw0rd"}, wantErr: credential.ErrNotFound,
		},
		{name: "reset", args: []string{"resetpassword", "-email", cred.Email}, extra: extra{pwd: "N3w-passw0rd"}},
		{name: "reset (mixed case email)", args: []string{"resetpassword", "-email", "AWE@escola.test"}, extra: extra{pwd: "Other-passw0rd"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pwd), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				refreshed, err := credRepo.Find(context.Background(), cred.Email)
				if err != nil {
					t.Fatalf("Find() failed, %v", err)
				}
				if bytes.Equal(refreshed.PasswordHash, cred.PasswordHash) {
					t.Error("failed to update new password")
				}
				if pwd := tt.extra.(extra).pwd; !refreshed.ComparePassword(pwd) {
					t.Errorf("ComparePassword(%q) = false", pwd)
				}
			} else {
				checkRunErr(t, tt, err)
			}
		})
	}
}
