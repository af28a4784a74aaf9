package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/session"
	"github.com/escolar/backend/core/tenant"
	emailsvc "github.com/escolar/backend/services/email"
	logsvc "github.com/escolar/backend/services/logger"
	"github.com/escolar/backend/storage/database"
	inmemdb "github.com/escolar/backend/storage/database/inmem"
	sqlxrepos "github.com/escolar/backend/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB & repos
	var (
		db         *sql.DB
		credRepo   credential.Repository
		tenantRepo tenant.Repository
	)
	if conf.Database.Driver == "postgres" {
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
		}
		dbx, err := database.Open(ctx, conf)
		cancel()
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer dbx.Close()

		db = dbx.DB
		credRepo = sqlxrepos.NewCredentialRepository(dbx)
		tenantRepo = sqlxrepos.NewTenantRepository(dbx)
	} else {
		mem := inmemdb.Open()
		credRepo = inmemdb.NewCredentialRepository(mem)
		tenantRepo = inmemdb.NewTenantRepository(mem)
	}

	// set up services
	credSvc := credential.NewService(credRepo)
	tenantSvc := tenant.NewService(tenantRepo, emailsvc.NewConsoleService(conf), conf)
	authSvc := auth.NewService(credSvc, tenantSvc, session.NewHS256Signer(conf), conf)

	// start CLI
	cli := commandLine{
		db:      db,
		authSvc: authSvc,
		credSvc: credSvc,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
