package domain

import "time"

// Account roles and statuses the session flows care about.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"

	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// User represents an account that owns sessions. Accounts are managed elsewhere;
// this service only reads them when issuing sessions and checking roles.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
