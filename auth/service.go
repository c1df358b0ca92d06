// Package auth issues and verifies the sandbox API's bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"rentflow/lifecycle"
)

var (
	// ErrInvalidCredentials signals wrong username, email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidToken signals a missing, malformed, expired or revoked token.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// TokenTTL is the lifetime of an issued token.
const TokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	now       func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	if repo == nil {
		repo = NewMemoryRepository()
	}
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		now:       time.Now,
		revoked:   make(map[string]time.Time),
	}
}

// WithClock overrides the time source used for issuing and checking tokens.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates a new account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (LoginResult, error) {
	if len(req.Password) < 8 {
		return LoginResult{}, ErrWeakPassword
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" {
		return LoginResult{}, fmt.Errorf("auth: username and email are required")
	}

	role := lifecycle.Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = lifecycle.RoleTenant
	}
	if role != lifecycle.RoleTenant && role != lifecycle.RoleLandlord {
		return LoginResult{}, fmt.Errorf("auth: invalid role %q", role)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Username:     username,
		Email:        email,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return LoginResult{}, err
	}
	return s.issue(user)
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByLogin(ctx, req.UsernameOrEmail)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}
	return s.issue(user)
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// VerifyToken validates a JWT token and returns its claims.
func (s *Service) VerifyToken(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	userID, _ := claims["user_id"].(string)
	roleStr, _ := claims["role"].(string)
	tokenID, _ := claims["jti"].(string)
	if userID == "" || tokenID == "" {
		return Claims{}, fmt.Errorf("%w: missing user_id or jti", ErrInvalidToken)
	}
	role := lifecycle.Role(roleStr)
	if !role.Valid() {
		return Claims{}, fmt.Errorf("%w: role %q", ErrInvalidToken, roleStr)
	}

	s.mu.Lock()
	_, revoked := s.revoked[tokenID]
	s.mu.Unlock()
	if revoked {
		return Claims{}, fmt.Errorf("%w: revoked", ErrInvalidToken)
	}

	out := Claims{UserID: userID, Role: role, TokenID: tokenID}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// Revoke invalidates the token until it would have expired anyway.
func (s *Service) Revoke(tokenString string) error {
	claims, err := s.VerifyToken(tokenString)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[claims.TokenID] = claims.ExpiresAt
	return nil
}

func (s *Service) issue(user User) (LoginResult, error) {
	now := s.now()
	expiresAt := now.Add(TokenTTL)
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"role":    string(user.Role),
		"jti":     uuid.NewString(),
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}
	return LoginResult{Token: tokenString, ExpiresAt: expiresAt, User: user}, nil
}
