package core

import "strings"

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// IsEmail reports whether s is a well-formed email address.
func IsEmail(s string) bool {
	return s != "" && Validate.Var(s, "email") == nil
}

// IsUUID4 reports whether s is a well-formed version 4 UUID.
func IsUUID4(s string) bool {
	return s != "" && Validate.Var(s, "uuid4") == nil
}
