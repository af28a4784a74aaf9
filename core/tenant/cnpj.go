package tenant

import (
	"github.com/go-playground/validator/v10"

	"github.com/escolar/backend/core"
)

var (
	cnpjTag  = "cnpj"
	cnpjText = "{0} must be a valid CNPJ"

	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

func init() {
	core.RegisterValidation(cnpjTag, cnpjValidation, cnpjText)
}

// ValidCNPJ reports whether s is a CNPJ with valid check digits.
// Both the formatted (12.345.678/0001-95) and bare (12345678000195) forms are accepted.
func ValidCNPJ(s string) bool {
	digits := make([]int, 0, 14)
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, int(c-'0'))
		case c == '.' || c == '/' || c == '-':
		default:
			return false
		}
	}
	if len(digits) != 14 {
		return false
	}

	allSame := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return false
	}

	return cnpjCheckDigit(digits[:12], cnpjFirstWeights) == digits[12] &&
		cnpjCheckDigit(digits[:13], cnpjSecondWeights) == digits[13]
}

// NormalizeCNPJ strips the punctuation of a CNPJ.
func NormalizeCNPJ(s string) string {
	out := make([]rune, 0, 14)
	for _, c := range core.CleanString(s) {
		if c >= '0' && c <= '9' {
			out = append(out, c)
		}
	}
	return string(out)
}

func cnpjCheckDigit(digits, weights []int) int {
	var sum int
	for i, d := range digits {
		sum += d * weights[i]
	}
	if rem := sum % 11; rem >= 2 {
		return 11 - rem
	}
	return 0
}

func cnpjValidation(fl validator.FieldLevel) bool {
	return ValidCNPJ(fl.Field().String())
}
