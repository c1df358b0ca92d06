package session

import (
	"time"

	"rentflow/lifecycle"
)

// StorageKey is the one key under which the session value is persisted.
const StorageKey = "rentflow.session"

// User is the authenticated account as reported by the API.
type User struct {
	ID        string         `json:"id"`
	Username  string         `json:"username"`
	Email     string         `json:"email,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Role      lifecycle.Role `json:"role"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

// Session is the bearer credential together with the user it belongs to.
// Token and User are persisted and cleared as one value.
type Session struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// Authenticated reports whether both halves are present.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != "" && s.User != nil && s.User.ID != ""
}

// Actor returns the lifecycle actor for the session's user.
func (s *Session) Actor() lifecycle.Actor {
	if !s.Authenticated() {
		return lifecycle.Actor{}
	}
	return lifecycle.Actor{UserID: s.User.ID, Role: s.User.Role}
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{Token: s.Token}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	return out
}

// Credentials are exchanged for a session by Login.
type Credentials struct {
	Username string
	Password string
}

// Registration creates an account and a session in one step.
type Registration struct {
	Username string
	Email    string
	Password string
	Phone    string
	Role     lifecycle.Role
}

type loginRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	Password        string `json:"password"`
}

type registerRequest struct {
	Username string         `json:"username"`
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Phone    string         `json:"phone,omitempty"`
	Role     lifecycle.Role `json:"role"`
}

// AuthResponse is returned by /auth/login and /auth/register.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	User        *User  `json:"user"`
}
