package auth

import (
	"errors"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

var ErrWeakPassword = errors.New("password must be at least 8 characters long and contain a digit, an uppercase letter, a lowercase letter and a special character")

const passwordSpecials = `!@#$%^&*(),.?":{}|<>`

// RegisterRequest is the input of account creation.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
	Role     string `json:"role" validate:"omitempty,oneof=member admin"`
}

// ValidateRegister checks field constraints, then password strength.
func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return err
	}
	if !isPasswordStrong(req.Password) {
		return ErrWeakPassword
	}
	return nil
}

// Validate runs struct tag validation on any request type.
func Validate(v any) error {
	return validate.Struct(v)
}

func isPasswordStrong(s string) bool {
	if len(s) < 8 {
		return false
	}
	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)
	for _, char := range s {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case strings.ContainsRune(passwordSpecials, char):
			hasSpecial = true
		}
	}
	return hasUpper && hasLower && hasNumber && hasSpecial
}
