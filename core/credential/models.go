package credential

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/escolar/backend/core"
	"github.com/escolar/backend/core/role"
)

var (
	HashCost = bcrypt.DefaultCost // mockable
	NowFunc  = time.Now           // mockable
)

// Credential is the global account of an email. It knows nothing about tenants.
type Credential struct {
	Email        string    `json:"email"`
	Password     string    `json:"-"` // raw, only until HashPassword runs
	PasswordHash []byte    `json:"-"`
	Role         role.Role `json:"role"`
	MasterID     string    `json:"masterId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"` // UTC
	UpdatedAt    time.Time `json:"updatedAt"` // UTC
}

// HashPassword replaces the raw password with its bcrypt hash. It is a no-op once the password is hashed.
func (c *Credential) HashPassword() error {
	if c.Password == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), HashCost)
	if err != nil {
		return err
	}
	c.PasswordHash = hash
	c.Password = ""
	return nil
}

// ComparePassword reports whether candidate matches the stored hash.
func (c *Credential) ComparePassword(candidate string) bool {
	if len(c.PasswordHash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(c.PasswordHash, []byte(candidate)) == nil
}

// NewCredential contains information needed to create a new Credential.
type NewCredential struct {
	Email    string    `json:"email" validate:"required,email"`
	Password string    `json:"password" validate:"required,password"`
	Role     role.Role `json:"role" validate:"required,role"`
	MasterID string    `json:"masterId" validate:"omitempty,uuid4"`
}

func (nc *NewCredential) Validate() error {
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.Role = role.Role(core.CleanString(string(nc.Role), true /* lower */))
	nc.MasterID = core.CleanString(nc.MasterID, true /* lower */)
	return core.Validate.Struct(nc)
}

// UpdateCredential defines what information may be provided to modify an existing Credential.
// Empty fields are left unchanged.
type UpdateCredential struct {
	Email    string    `json:"email" validate:"omitempty,email"`
	Role     role.Role `json:"role" validate:"omitempty,role"`
	Password string    `json:"password" validate:"omitempty,password"`
}

func (uc *UpdateCredential) Validate(orig Credential) error {
	if email := core.CleanString(uc.Email, true /* lower */); email != "" {
		uc.Email = email
	} else {
		uc.Email = orig.Email
	}
	if r := role.Role(core.CleanString(string(uc.Role), true /* lower */)); r != "" {
		uc.Role = r
	} else {
		uc.Role = orig.Role
	}

	if err := core.Validate.Struct(uc); err != nil {
		return err
	}
	if uc.Password != "" && tooSimilar(uc.Password, uc.Email) {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: passwordSimilarText})
	}
	return nil
}
