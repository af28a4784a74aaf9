package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/policy"
	"github.com/escolar/backend/core/session"
	"github.com/escolar/backend/core/tenant"
	metricsvc "github.com/escolar/backend/services/metrics"
)

type (
	Options struct {
		Address        string
		Debug          bool
		TestMode       bool
		DisableReqLogs bool
		AppName        string
		Logger         core.Logger
		SignalShutdown func()
		Metrics        *metricsvc.Metrics

		// AuthRateLimit caps the requests per second a client IP may send to /auth; 0 disables it.
		AuthRateLimit float64
		AuthRateBurst int
		// BehindProxy takes the client IP from X-Forwarded-For when set by a proxy on a private network.
		// Otherwise it is the address of the peer.
		BehindProxy bool

		AuthSvc   *auth.Service
		TenantSvc *tenant.Service
		Gate      *policy.Gate
		Signer    *session.HS256Signer
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts *Options
		app  *echo.Echo
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	s := &server{
		opts: opts,
		app:  echo.New(),
	}
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	if s.opts.BehindProxy {
		s.app.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		s.app.IPExtractor = echo.ExtractIPDirect()
	}
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	if s.opts.Metrics != nil {
		s.app.Use(metricsMiddleware(s.opts.Metrics))
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	signalShutdown := s.opts.SignalShutdown
	if signalShutdown == nil {
		signalShutdown = func() {}
	}
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.opts.Signer))

	var limiter echo.MiddlewareFunc
	if s.opts.AuthRateLimit > 0 {
		limiter = rateLimitMiddleware(newRateLimiter(s.opts.AuthRateLimit, s.opts.AuthRateBurst))
	}

	registerAuthAPI(v1, limiter, s.opts.Metrics, s.opts.AuthSvc, s.opts.TenantSvc)
	registerTenantAPI(v1, jwt, s.opts.Gate, s.opts.TenantSvc, s.opts.AuthSvc)
	registerCredentialAPI(v1, jwt, s.opts.Gate, s.opts.AuthSvc)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.AppName+" API!")
}
