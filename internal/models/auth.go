package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims are the JWT claims carried by session tokens issued after a
// successful password, OTP, or TOTP verification.
type TokenClaims struct {
	Type      string `json:"type"` // "access" or "refresh"
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}
