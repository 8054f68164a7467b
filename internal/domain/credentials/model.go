package credentials

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Max length constants for user-editable fields.
const (
	MaxEmailLength    = 254
	MaxUsernameLength = 80
	MaxPasswordLength = 128
)

// validate is shared; validator.Validate caches struct metadata and is safe for concurrent use.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Login is the input of the login form.
type Login struct {
	Email    string `validate:"required,max=254,email"`
	Password string `validate:"required,max=128"`
}

// Register is the input of the registration form.
type Register struct {
	Username string `validate:"required,notblank,max=80"`
	Email    string `validate:"required,max=254,email"`
	Password string `validate:"required,max=128"`
}

// Normalize trims whitespace around identifiers. Passwords are left untouched.
func (l *Login) Normalize() {
	l.Email = strings.TrimSpace(l.Email)
}

// Normalize trims whitespace around identifiers. Passwords are left untouched.
func (r *Register) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.TrimSpace(r.Email)
}

// Validate checks the login form before anything is sent to the backend.
// PRE: Normalize has been called
// POST: Returns nil if valid, a user-facing error otherwise
func (l Login) Validate() error {
	return humanize(validate.Struct(l))
}

// Validate checks the registration form before anything is sent to the backend.
// PRE: Normalize has been called
// POST: Returns nil if valid, a user-facing error otherwise
func (r Register) Validate() error {
	return humanize(validate.Struct(r))
}

// humanize turns the first validation failure into a message fit for the form.
func humanize(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "notblank":
		return errors.New(field + " is required")
	case "email":
		return errors.New("please enter a valid email address")
	case "max":
		return errors.New(field + " is too long")
	default:
		return errors.New(field + " is invalid")
	}
}
