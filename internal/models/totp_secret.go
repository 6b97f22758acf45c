package models

import "time"

// TotpSecret is a per-account shared secret for authenticator apps.
// Created at enrollment, confirmed on first successful verification, and
// immutable thereafter except for revocation (deletion).
type TotpSecret struct {
	AccountID   string     `json:"account_id"`
	Secret      string     `json:"-"` // base32-encoded, never exposed after enrollment
	Confirmed   bool       `json:"confirmed"`
	CreatedAt   time.Time  `json:"created_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
}
