package auth

import "time"

// Role separates ordinary members from staff who may provision inventory.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is a stored identity. PasswordHash is a bcrypt hash; the plaintext
// never leaves the signup/signin handlers.
type User struct {
	ID                string
	FullName          string
	Email             string
	UniversityID      string
	UniversityCardURL string
	PasswordHash      string
	Role              Role
	Status            string
	LastActivityDate  time.Time
	CreatedAt         time.Time
}

// Identity is the claim set carried by a session token. It is trusted without
// a store lookup as long as the signature and expiry check pass.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// Session is the result of a successful credential check or refresh.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  Identity  `json:"identity"`
}
