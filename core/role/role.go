// Package role defines the roles a credential can hold inside a tenant.
package role

import (
	"github.com/go-playground/validator/v10"

	"github.com/escolar/backend/core"
)

type Role string

const (
	Master        Role = "master"
	Administrator Role = "administrator"
	Teacher       Role = "teacher"
	Student       Role = "student"
	Worker        Role = "worker"
)

var (
	All = []Role{Master, Administrator, Teacher, Student, Worker}

	roleTag  = "role"
	roleText = "{0} must be one of: master, administrator, teacher, student, worker"
)

func init() {
	core.RegisterValidation(roleTag, roleValidation, roleText)
}

func (r Role) IsValid() bool {
	switch r {
	case Master, Administrator, Teacher, Student, Worker:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// Parse cleans s and returns the matching Role.
func Parse(s string) (Role, error) {
	r := Role(core.CleanString(s, true /* lower */))
	if !r.IsValid() {
		return "", core.NewValidationError(nil, core.FieldError{Field: "role", Error: "invalid role " + s})
	}
	return r, nil
}

// roleValidation checks that the field holds a known Role.
func roleValidation(fl validator.FieldLevel) bool {
	return Role(fl.Field().String()).IsValid()
}
