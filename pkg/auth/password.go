package auth

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultBcryptCost = 12
	MinPasswordLen    = 8
	MaxPasswordLen    = 128
)

// CredentialPolicy hashes and verifies passwords and validates their strength.
// The work factor is tunable so verification stays in the tens-of-milliseconds
// range on production hardware.
type CredentialPolicy struct {
	cost int
}

// NewCredentialPolicy creates a policy with the given bcrypt cost. Costs
// outside bcrypt's supported range fall back to the default.
func NewCredentialPolicy(cost int) *CredentialPolicy {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &CredentialPolicy{cost: cost}
}

// Hash returns the bcrypt hash of password using the configured work factor.
func (p *CredentialPolicy) Hash(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

// Verify reports whether password matches the stored hash.
func (p *CredentialPolicy) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// StrengthResult reports every rule a candidate password violates, so callers
// can display the complete list rather than one failure at a time.
type StrengthResult struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":     true,
	"12345678":     true,
	"qwerty123":    true,
	"password123":  true,
	"password123!": true,
	"letmein1":     true,
	"welcome1":     true,
	"sunshine1":    true,
	"princess1":    true,
	"iloveyou1":    true,
}

// ValidateStrength checks the candidate password against all strength rules.
func (p *CredentialPolicy) ValidateStrength(password string) StrengthResult {
	violations := make([]string, 0)

	if len(password) < MinPasswordLen {
		violations = append(violations, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if len(password) > MaxPasswordLen {
		violations = append(violations, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	hasUpper := false
	hasLower := false
	hasDigit := false
	hasSpecial := false

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !hasUpper {
		violations = append(violations, "must contain at least one uppercase letter")
	}
	if !hasLower {
		violations = append(violations, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		violations = append(violations, "must contain at least one digit")
	}
	if !hasSpecial {
		violations = append(violations, "must contain at least one special character")
	}

	if commonPasswords[strings.ToLower(password)] {
		violations = append(violations, "is too common, please choose a more unique password")
	}

	return StrengthResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}
