package role

import (
	"testing"

	"github.com/escolar/backend/core"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{in: "master", want: Master},
		{in: " Teacher ", want: Teacher},
		{in: "STUDENT", want: Student},
		{in: "worker", want: Worker},
		{in: "administrator", want: Administrator},
		{in: "admin", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && core.KindOf(err) != core.KindValidation {
				t.Errorf("Parse() error kind = %v, want validation", core.KindOf(err))
			}
			if got != tt.want {
				t.Errorf("Parse() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoleTag(t *testing.T) {
	type payload struct {
		Role Role `json:"role" validate:"required,role"`
	}
	if err := core.Validate.Struct(payload{Role: Teacher}); err != nil {
		t.Errorf("valid role rejected: %v", err)
	}
	if err := core.Validate.Struct(payload{Role: "janitor"}); err == nil {
		t.Error("invalid role accepted")
	}
}
