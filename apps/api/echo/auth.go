package echoapi

import (
	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/escolar/backend/core/session"
)

const contextTokenKey = "sessionToken"

// newJWTConfig returns the JWT auth middleware config. Tokens are the ones minted by signer.
func newJWTConfig(signer *session.HS256Signer) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    signer.Key(),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(session.Claims),
	}
}

func getContextClaims(ctx echo.Context) (*session.Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*session.Claims); ok {
			return claims, nil
		}
	}
	return nil, errUnauthorized
}
