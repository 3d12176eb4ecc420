package security

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/labforge/lims-admin/internal/apperr"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("security: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with a bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// PasswordPolicy describes the rules a new password must satisfy.
type PasswordPolicy struct {
	MinLength      int     // Minimum number of characters.
	RequireSpecial bool    // At least one non alphanumeric character.
	MinEntropy     float64 // Entropy floor in bits, 0 disables the check.
}

// Validate checks the password against the policy.
func (p PasswordPolicy) Validate(password string) error {
	if strings.TrimSpace(password) == "" {
		return apperr.InvalidArg("password is required")
	}
	if p.MinLength > 0 && len([]rune(password)) < p.MinLength {
		return apperr.InvalidArg(fmt.Sprintf("password must be at least %d characters", p.MinLength))
	}
	if p.RequireSpecial && !hasSpecialChar(password) {
		return apperr.InvalidArg("password must contain a special character")
	}
	if p.MinEntropy > 0 {
		if errEntropy := passwordvalidator.Validate(password, p.MinEntropy); errEntropy != nil {
			return apperr.InvalidArg(errEntropy.Error())
		}
	}
	return nil
}

func hasSpecialChar(password string) bool {
	for _, r := range password {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
