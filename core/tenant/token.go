package tenant

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

const defaultVerificationTimeout = 3 * 24 * time.Hour

var (
	tokenSalt = []byte("escolar.backend.core.tenant.token")
	NowFunc   = time.Now // mockable

	// errors
	ErrInvalidVerificationToken = core.NewAccessDeniedError("invalid verification token")
	ErrVerificationTokenExpired = core.NewAccessDeniedError("verification token expired")

	tsEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)
)

// tokenGenerator issues the tokens members use to confirm a role pending verification.
// A token is bound to the record state, so it stops working once the role is verified or deactivated.
type tokenGenerator struct {
	key     [sha256.Size]byte
	timeout time.Duration
}

func newTokenGenerator(secret string, timeout time.Duration) tokenGenerator {
	if timeout <= 0 {
		timeout = defaultVerificationTimeout
	}
	return tokenGenerator{
		key:     sha256.Sum256(append(append([]byte{}, tokenSalt...), secret...)),
		timeout: timeout,
	}
}

// makeToken generates a verification token for the r record of email in t.
func (g tokenGenerator) makeToken(t *Tenant, email string, r role.Role) (string, error) {
	return g.makeTokenWithTimestamp(t, email, r, numDaysSince2001(NowFunc()))
}

// verifyToken checks that token was issued for the current state of the r record of email in t.
func (g tokenGenerator) verifyToken(t *Tenant, email string, r role.Role, token string) error {
	if token == "" {
		return ErrInvalidVerificationToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidVerificationToken
	}
	data, err := tsEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidVerificationToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidVerificationToken
	}

	// check that token has not been tampered with
	newToken, err := g.makeTokenWithTimestamp(t, email, r, ts)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return ErrInvalidVerificationToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(NowFunc()) - ts) > int(g.timeout/(24*time.Hour)) {
		return ErrVerificationTokenExpired
	}
	return nil
}

func (g tokenGenerator) makeTokenWithTimestamp(t *Tenant, email string, r role.Role, ts int) (string, error) {
	sig, err := g.sign(hashValue(t, email, r, ts))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", tsEncoding.EncodeToString([]byte(strconv.Itoa(ts))), sig), nil
}

func (g tokenGenerator) sign(val []byte) (string, error) {
	h := hmac.New(sha256.New, g.key[:])
	if _, err := h.Write(val); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(t *Tenant, email string, r role.Role, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(t.ID)
	val.WriteString(email)
	val.WriteString(string(r))
	if ra, ok := t.Role(email, r); ok {
		val.WriteString(string(ra.Status()))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
