package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentflow/lifecycle"
)

var (
	// ErrUserNotFound signals that the user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrDuplicateUser signals that the username or email is already registered.
	ErrDuplicateUser = errors.New("auth: username or email already exists")
)

// Repository handles data access for authentication.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserByLogin(ctx context.Context, usernameOrEmail string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
}

// CreateUserParams contains write parameters for creating users.
type CreateUserParams struct {
	Username     string
	Email        string
	Phone        string
	PasswordHash string
	Role         lifecycle.Role
}

// MemoryRepository keeps users in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	now     func() time.Time
	byID    map[string]User
	byLogin map[string]string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		now:     time.Now,
		byID:    make(map[string]User),
		byLogin: make(map[string]string),
	}
}

// CreateUser stores a new user. Usernames and emails are unique, case-insensitively.
func (r *MemoryRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for _, k := range []string{loginKey(params.Username), loginKey(params.Email)} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if _, taken := r.byLogin[k]; taken {
			return User{}, ErrDuplicateUser
		}
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		Phone:        params.Phone,
		PasswordHash: params.PasswordHash,
		Role:         params.Role,
		CreatedAt:    r.now().UTC(),
	}
	r.byID[user.ID] = user
	for _, k := range keys {
		r.byLogin[k] = user.ID
	}
	return user, nil
}

// GetUserByLogin fetches a user by username or email.
func (r *MemoryRepository) GetUserByLogin(ctx context.Context, usernameOrEmail string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byLogin[loginKey(usernameOrEmail)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return r.byID[id], nil
}

// GetUserByID fetches a user by id.
func (r *MemoryRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.byID[userID]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func loginKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
