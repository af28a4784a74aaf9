package dig_container

import (
	"context"
	"log"
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	echoapi "github.com/escolar/backend/apps/api/echo"
	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/policy"
	"github.com/escolar/backend/core/session"
	"github.com/escolar/backend/core/tenant"
	emailsvc "github.com/escolar/backend/services/email"
	logsvc "github.com/escolar/backend/services/logger"
	metricsvc "github.com/escolar/backend/services/metrics"
	"github.com/escolar/backend/storage/database"
	inmemdb "github.com/escolar/backend/storage/database/inmem"
	sqlxrepos "github.com/escolar/backend/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Repositories are backed by the store picked with Config.Database.Driver.
	Repositories struct {
		dig.Out
		Credentials credential.Repository
		Tenants     tenant.Repository
		CloseDB     func() error `name:"closeDB"`
	}

	CloseDBParam struct {
		dig.In
		CloseDB func() error `name:"closeDB"`
	}

	// Shutdown receives the signal that stops the API server.
	Shutdown chan os.Signal
)

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) (Repositories, error) {
	switch conf.Database.Driver {
	case "", "inmem":
		loggerParam.Logger.Info("using in-memory store")
		db := inmemdb.Open()
		return Repositories{
			Credentials: inmemdb.NewCredentialRepository(db),
			Tenants:     inmemdb.NewTenantRepository(db),
			CloseDB:     func() error { return nil },
		}, nil

	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return Repositories{}, err
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return Repositories{}, err
		}
		if err = database.Migrate(db.DB); err != nil {
			_ = db.Close()
			return Repositories{}, err
		}
		return Repositories{
			Credentials: sqlxrepos.NewCredentialRepository(db),
			Tenants:     sqlxrepos.NewTenantRepository(db),
			CloseDB:     db.Close,
		}, nil

	default:
		return Repositories{}, errors.Errorf("unknown database driver %q", conf.Database.Driver)
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMetrics() (*metricsvc.Metrics, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	return metricsvc.New(reg)
}

func newSigner(signer *session.HS256Signer) session.Signer {
	return signer
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	shutdown Shutdown,
	metrics *metricsvc.Metrics,
	authSvc *auth.Service,
	tenantSvc *tenant.Service,
	gate *policy.Gate,
	signer *session.HS256Signer,
) echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Address:  conf.Server.Address,
		Debug:    conf.Debug,
		TestMode: conf.TestMode,
		AppName:  conf.AppName,
		Logger:   logger,
		SignalShutdown: func() {
			shutdown <- syscall.SIGTERM
		},
		Metrics:       metrics,
		AuthRateLimit: conf.Server.AuthRateLimit,
		AuthRateBurst: conf.Server.AuthRateBurst,
		BehindProxy:   conf.Server.BehindProxy,
		AuthSvc:       authSvc,
		TenantSvc:     tenantSvc,
		Gate:          gate,
		Signer:        signer,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newEmailService))
	must(c.Provide(func() Shutdown { return make(Shutdown, 1) }))
	must(c.Provide(newMetrics))

	must(c.Provide(credential.NewService))
	must(c.Provide(tenant.NewService))
	must(c.Provide(session.NewHS256Signer))
	must(c.Provide(newSigner))
	must(c.Provide(policy.NewSource))
	must(c.Provide(policy.NewGate))
	must(c.Provide(auth.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
