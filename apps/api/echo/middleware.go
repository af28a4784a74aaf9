package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core/auth"
	"github.com/escolar/backend/core/policy"
)

// scopeFunc extracts, from the request, what a policy check is narrowed to.
type scopeFunc func(ctx echo.Context) (policy.Context, error)

func tenantScope(ctx echo.Context) (policy.Context, error) {
	return policy.Context{MasterID: tenantID(ctx)}, nil
}

// credentialScope targets the credential in the path along with the tenant owning it.
func credentialScope(svc *auth.Service) scopeFunc {
	return func(ctx echo.Context) (policy.Context, error) {
		email := credentialEmail(ctx)
		owner, err := svc.CredentialOwner(ctx.Request().Context(), email)
		if err != nil {
			return policy.Context{}, errors.Wrap(err, "finding credential owner")
		}
		return policy.Context{TargetEmail: email, TargetOwner: owner}, nil
	}
}

// policyMiddleware rejects the request unless the session token passes the policy gate for (module, action).
func policyMiddleware(gate *policy.Gate, module policy.Module, action policy.Action, scope scopeFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			pc, err := scope(ctx)
			if err != nil {
				return err
			}
			if gate.VerifyPolicies(module, action, claims, pc) {
				return next(ctx)
			}
			return errHTTPForbidden
		}
	}
}
