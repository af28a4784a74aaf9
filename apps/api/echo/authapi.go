package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/tenant"
	metricsvc "github.com/escolar/backend/services/metrics"
)

const errRegisterMasterID = "use the tenant members endpoint to join an existing tenant"

type authApi struct {
	svc       *auth.Service
	tenantSvc *tenant.Service
	metrics   *metricsvc.Metrics
}

func registerAuthAPI(g *echo.Group, limiter echo.MiddlewareFunc, m *metricsvc.Metrics, svc *auth.Service, tenantSvc *tenant.Service) {
	api := authApi{svc: svc, tenantSvc: tenantSvc, metrics: m}

	// un-authed endpoints
	ag := g.Group("/auth")
	if limiter != nil {
		ag.Use(limiter)
	}
	ag.POST("/discover", api.discover)
	ag.POST("/session", api.createSession)
	ag.POST("/register", api.register)
	ag.POST("/verify", api.confirmRole)
}

// Handlers

func (api *authApi) discover(ctx echo.Context) error {
	var data auth.DiscoverRequest
	if err := bind(ctx, &data, false); err != nil {
		return err
	}
	available, err := api.svc.Discover(ctx.Request().Context(), data)
	api.metrics.ObserveLogin("discover", loginOutcome(err))
	if err != nil {
		return errors.Wrap(err, "discovering tenants")
	}
	return ctx.JSON(http.StatusOK, available)
}

func (api *authApi) createSession(ctx echo.Context) error {
	var data auth.SessionRequest
	if err := bind(ctx, &data, false); err != nil {
		return err
	}
	sess, err := api.svc.CreateSession(ctx.Request().Context(), data)
	api.metrics.ObserveLogin("session", loginOutcome(err))
	if err != nil {
		return errors.Wrap(err, "creating session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

// register signs up a new tenant. Joining an existing tenant goes through its members endpoint.
func (api *authApi) register(ctx echo.Context) error {
	var data auth.RegisterRequest
	if err := bind(ctx, &data, false); err != nil {
		return err
	}
	if data.MasterID != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "masterId", Error: errRegisterMasterID})
	}
	reg, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering")
	}
	return ctx.JSON(http.StatusCreated, reg)
}

func (api *authApi) confirmRole(ctx echo.Context) error {
	var data tenant.ConfirmRoleRequest
	if err := bind(ctx, &data, false); err != nil {
		return err
	}
	t, err := api.tenantSvc.ConfirmUserRole(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "confirming role")
	}
	return ctx.JSON(http.StatusOK, t)
}
