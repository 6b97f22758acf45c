package models

import "time"

// Account roles
const (
	RoleParent = "parent"
	RoleChild  = "child"
	RoleAdmin  = "admin"
)

// Account represents a marketplace account. Child accounts are linked to the
// parent that configured them and are subject to ParentalControls.
type Account struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Phone        string     `json:"phone,omitempty"`
	PasswordHash string     `json:"-"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	ParentID     *string    `json:"parent_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DisabledAt   *time.Time `json:"disabled_at,omitempty"`
}

// IsChild reports whether this account is subject to the child-safety guard.
func (a *Account) IsChild() bool {
	return a.Role == RoleChild
}
