package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/credential"
	"github.com/escolar/backend/core/policy"
)

type credentialApi struct {
	svc *auth.Service
}

func registerCredentialAPI(g *echo.Group, jwt echo.MiddlewareFunc, gate *policy.Gate, svc *auth.Service) {
	api := credentialApi{svc: svc}
	scope := credentialScope(svc)
	can := func(action policy.Action) echo.MiddlewareFunc {
		return policyMiddleware(gate, policy.ModuleCredential, action, scope)
	}

	// authed endpoints
	cg := g.Group("/credentials/:email", jwt)
	cg.PUT("", api.update, can(policy.ActionUpdate))
	cg.DELETE("", api.destroy, can(policy.ActionDelete))
}

// Handlers

func (api *credentialApi) update(ctx echo.Context) error {
	var data credential.UpdateCredential
	if err := bind(ctx, &data, false); err != nil {
		return err
	}
	cred, err := api.svc.UpdateCredential(ctx.Request().Context(), credentialEmail(ctx), data)
	if err != nil {
		return errors.Wrap(err, "updating credential")
	}
	return ctx.JSON(http.StatusOK, cred)
}

func (api *credentialApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteCredential(ctx.Request().Context(), credentialEmail(ctx)); err != nil {
		return errors.Wrap(err, "deleting credential")
	}
	return ctx.NoContent(http.StatusNoContent)
}
