// Package session issues and verifies the tokens scoping a caller to one (tenant, role).
package session

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrInvalidToken = core.NewUnauthenticatedError("invalid session token")
	ErrTokenExpired = core.NewUnauthenticatedError("session token expired")
)

// Payload is what a session token asserts about its bearer.
type Payload struct {
	Email    string    `json:"email"`
	MasterID string    `json:"masterId"`
	Role     role.Role `json:"role"`
}

// Claims is the JWT form of a Payload: {email, masterId, role, iat, exp}.
type Claims struct {
	jwt.StandardClaims
	Email    string    `json:"email"`
	MasterID string    `json:"masterId"`
	Role     role.Role `json:"role"`
}

// NewClaims returns the claims of p, issued now and expiring after ttl.
func NewClaims(p Payload, ttl time.Duration) *Claims {
	now := NowFunc()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Email:    p.Email,
		MasterID: p.MasterID,
		Role:     p.Role,
	}
}

func (c Claims) Payload() Payload {
	return Payload{Email: c.Email, MasterID: c.MasterID, Role: c.Role}
}

// Valid implements jwt.Claims.
func (c Claims) Valid() error {
	if !c.VerifyExpiresAt(NowFunc().Unix(), true) {
		return ErrTokenExpired
	}
	if c.Email == "" || c.MasterID == "" || !c.Role.IsValid() {
		return ErrInvalidToken
	}
	return nil
}

type Signer interface {
	Sign(p Payload, ttl time.Duration) (string, error)
	Verify(token string) (*Claims, error)
}

// HS256Signer signs session tokens as HMAC-SHA256 JWTs.
type HS256Signer struct {
	key []byte
}

var _ Signer = (*HS256Signer)(nil)

func NewHS256Signer(conf *core.Config) *HS256Signer {
	return &HS256Signer{key: []byte(conf.SecretKey)}
}

// Key returns the signing key, for middlewares verifying tokens on their own.
func (s *HS256Signer) Key() []byte {
	return s.key
}

func (s *HS256Signer) Sign(p Payload, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, NewClaims(p, ttl))
	ss, err := token.SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (s *HS256Signer) Verify(tokenString string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	})
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok && errors.Is(ve.Inner, ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	return claims, nil
}
