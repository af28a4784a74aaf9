package credential

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/escolar/backend/core"
)

var (
	passwordTag  = "password"
	passwordText = "{0} must have at least 8 characters, no spaces and not only digits"

	passwordSimilarTag  = "password_similar"
	passwordSimilarText = "password is too similar to the email"

	minPasswordLength    = 8
	maxSimilarity        = 0.7
	emailPartSeparatorRe = regexp.MustCompile(`\W+`)
)

func init() {
	core.RegisterValidation(passwordTag, passwordValidation, passwordText)
	core.RegisterCustomTranslation(passwordSimilarTag, passwordSimilarText)
	core.Validate.RegisterStructValidation(newCredentialStructValidation, NewCredential{})
}

func passwordValidation(fl validator.FieldLevel) bool {
	pwd := fl.Field().String()
	if len([]rune(pwd)) < minPasswordLength {
		return false
	}

	allDigits := true
	for _, r := range pwd {
		if unicode.IsSpace(r) {
			return false
		}
		if !unicode.IsDigit(r) {
			allDigits = false
		}
	}
	return !allDigits
}

func newCredentialStructValidation(sl validator.StructLevel) {
	nc := sl.Current().Interface().(NewCredential)
	if nc.Password != "" && tooSimilar(nc.Password, nc.Email) {
		sl.ReportError(nc.Password, "password", "Password", passwordSimilarTag, "")
	}
}

// tooSimilar reports whether pwd looks too much like email or one of its parts.
func tooSimilar(pwd, email string) bool {
	pwd = strings.ToLower(pwd)
	email = strings.ToLower(email)
	if pwd == "" || email == "" {
		return false
	}

	parts := []string{email}
	if at := strings.LastIndex(email, "@"); at > 0 {
		parts = append(parts, email[:at])
	}
	parts = append(parts, emailPartSeparatorRe.Split(email, -1)...)
	for _, part := range parts {
		if len(part) < 3 {
			continue
		}
		m := difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(part, ""))
		if m.QuickRatio() >= maxSimilarity && m.Ratio() >= maxSimilarity {
			return true
		}
	}
	return false
}
