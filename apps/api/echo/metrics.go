package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/escolar/backend/core"
	metricsvc "github.com/escolar/backend/services/metrics"
)

// metricsMiddleware records every request under its route template.
func metricsMiddleware(m *metricsvc.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			done := m.Begin(ctx.Request().Method, ctx.Path())
			if err := next(ctx); err != nil {
				ctx.Error(err)
			}
			done(ctx.Response().Status)
			return nil
		}
	}
}

// loginOutcome labels a login attempt for metrics.
func loginOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch core.KindOf(err) {
	case core.KindValidation:
		return "invalid"
	case core.KindUnauthenticated:
		return "unauthenticated"
	case core.KindAccessDenied, core.KindInactiveTenant, core.KindNotFound:
		return "denied"
	default:
		return "error"
	}
}
