package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/policy"
	"github.com/escolar/backend/core/role"
	"github.com/escolar/backend/core/tenant"
)

type tenantApi struct {
	svc     *tenant.Service
	authSvc *auth.Service
}

func registerTenantAPI(g *echo.Group, jwt echo.MiddlewareFunc, gate *policy.Gate, svc *tenant.Service, authSvc *auth.Service) {
	api := tenantApi{svc: svc, authSvc: authSvc}
	can := func(action policy.Action) echo.MiddlewareFunc {
		return policyMiddleware(gate, policy.ModuleTenant, action, tenantScope)
	}

	// authed endpoints
	tg := g.Group("/tenants/:id", jwt)
	tg.GET("", api.retrieve, can(policy.ActionRead))
	tg.POST("/members", api.addMember, can(policy.ActionCreate))
	tg.PUT("/members/role", api.changeRole, can(policy.ActionUpdate))
	tg.DELETE("/members/role", api.deactivateRole, can(policy.ActionUpdate))
	tg.POST("/members/verify", api.verifyRole, can(policy.ActionUpdate))
}

// Handlers

func (api *tenantApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.GetTenant(ctx.Request().Context(), tenantID(ctx))
	if err != nil {
		return errors.Wrap(err, "getting tenant")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) addMember(ctx echo.Context) error {
	var data auth.MemberRequest
	if err := bind(ctx, &data, false); err != nil {
		return err
	}
	// only a master hands out the master role
	if role.Role(data.Role) == role.Master {
		if claims, err := getContextClaims(ctx); err != nil || claims.Role != role.Master {
			return errHTTPForbidden
		}
	}
	t, err := api.authSvc.AddMember(ctx.Request().Context(), tenantID(ctx), data)
	if err != nil {
		return errors.Wrap(err, "adding member")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *tenantApi) changeRole(ctx echo.Context) error {
	var data changeRoleRequest
	if err := bind(ctx, &data, true); err != nil {
		return err
	}
	t, err := api.svc.ChangeUserRoleInTenant(ctx.Request().Context(), tenantID(ctx), data.Email, data.OldRole, data.NewRole)
	if err != nil {
		return errors.Wrap(err, "changing member role")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) deactivateRole(ctx echo.Context) error {
	var data memberRoleRequest
	if err := bind(ctx, &data, true); err != nil {
		return err
	}
	t, err := api.svc.DeactivateUserRoleInTenant(ctx.Request().Context(), tenantID(ctx), data.Email, data.Role)
	if err != nil {
		return errors.Wrap(err, "deactivating member role")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) verifyRole(ctx echo.Context) error {
	var data memberRoleRequest
	if err := bind(ctx, &data, true); err != nil {
		return err
	}
	t, err := api.svc.MarkUserRoleVerified(ctx.Request().Context(), tenantID(ctx), data.Email, data.Role)
	if err != nil {
		return errors.Wrap(err, "verifying member role")
	}
	return ctx.JSON(http.StatusOK, t)
}
