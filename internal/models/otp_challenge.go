package models

import "time"

// OtpPurpose distinguishes why a passcode was issued. A code issued for one
// purpose can never be verified against another.
type OtpPurpose string

const (
	OtpPurposeLogin        OtpPurpose = "login"
	OtpPurposeRegistration OtpPurpose = "registration"
)

// Valid reports whether the purpose is one of the known values.
func (p OtpPurpose) Valid() bool {
	return p == OtpPurposeLogin || p == OtpPurposeRegistration
}

// OtpChallenge is a single issued one-time passcode. The plaintext code is
// never stored; only its hash bound to the verification key.
type OtpChallenge struct {
	VerificationKey string     `json:"verification_key"`
	Target          string     `json:"target"` // phone number or email
	Purpose         OtpPurpose `json:"purpose"`
	CodeHash        string     `json:"-"`
	IssuedAt        time.Time  `json:"issued_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	ConsumedAt      *time.Time `json:"consumed_at,omitempty"`
}

// IsExpired checks if the challenge has expired
func (c *OtpChallenge) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// IsConsumed checks if the challenge has already been used
func (c *OtpChallenge) IsConsumed() bool {
	return c.ConsumedAt != nil
}
