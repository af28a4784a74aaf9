package echoapi

import (
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

type (
	changeRoleRequest struct {
		Email   string    `json:"email" validate:"required,email"`
		OldRole role.Role `json:"oldRole" validate:"required,role"`
		NewRole role.Role `json:"newRole" validate:"required,role"`
	}

	memberRoleRequest struct {
		Email string    `json:"email" validate:"required,email"`
		Role  role.Role `json:"role" validate:"required,role"`
	}
)

// bind decodes the request body into data and validates it when asked to.
func bind(ctx echo.Context, data interface{}, validate bool) error {
	if err := ctx.Bind(data); err != nil {
		return errors.Wrapf(err, "binding to %T", data)
	}
	if validate {
		return core.Validate.Struct(data)
	}
	return nil
}

func tenantID(ctx echo.Context) string {
	return core.CleanString(ctx.Param("id"), true /* lower */)
}

func credentialEmail(ctx echo.Context) string {
	email := ctx.Param("email")
	if unescaped, err := url.PathUnescape(email); err == nil {
		email = unescaped
	}
	return core.CleanString(email, true /* lower */)
}
