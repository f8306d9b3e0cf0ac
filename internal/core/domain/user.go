package domain

import (
	"time"

	"github.com/google/uuid"
)

// UserRole determines access to administrative operations.
type UserRole string

const (
	UserRoleUser  UserRole = "USER"
	UserRoleAdmin UserRole = "ADMIN"
)

// UserStatus represents the state of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User represents a marketplace participant (publisher or advertiser).
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"` // Argon2id, never expose
	DisplayName  string     `json:"display_name"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsActive returns true if the account may transact.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsAdmin returns true for platform operators.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
