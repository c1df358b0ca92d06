package auth

import (
	"time"

	"rentflow/lifecycle"
)

// User is an account held by the sandbox API.
type User struct {
	ID           string
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Role         lifecycle.Role
	CreatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Phone    string         `json:"phone,omitempty"`
	Role     lifecycle.Role `json:"role"`
}

// LoginRequest contains user login credentials. Either the username or the
// email is accepted.
type LoginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

// Claims is what a verified token says about its bearer.
type Claims struct {
	UserID    string
	Role      lifecycle.Role
	TokenID   string
	ExpiresAt time.Time
}
