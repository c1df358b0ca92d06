// Package session owns the authenticated identity and bearer credential.
//
// Callers only ever observe a fully authenticated session or none at all:
// the token and the user are written, read and cleared as one value.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"rentflow/fault"
	"rentflow/lifecycle"
	"rentflow/resource"
)

// Manager logs in, restores and logs out. Login and Logout on one Manager must
// be serialized by the caller; reads of the current session are safe from
// any goroutine.
type Manager struct {
	api    *resource.Client
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu      sync.RWMutex
	current *Session

	restoring singleflight.Group
}

// NewManager wires m into api: api sends m's token and reports rejected
// credentials back to m.
func NewManager(api *resource.Client, store Store, logger *zap.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{api: api, store: store, logger: logger, now: time.Now}
	api.UseCredentials(m)
	api.OnUnauthorized(func() { m.Invalidate(context.Background()) })
	return m
}

// WithClock overrides the clock used for token expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Token returns the bearer token of the current session, or "".
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.current.Authenticated() {
		return ""
	}
	return m.current.Token
}

// Current returns a copy of the current session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.current.Authenticated() {
		return nil
	}
	return m.current.clone()
}

// Actor returns the lifecycle actor of the current session.
func (m *Manager) Actor() (lifecycle.Actor, error) {
	s := m.Current()
	if s == nil {
		return lifecycle.Actor{}, fault.Authentication("session", "not logged in")
	}
	return s.Actor(), nil
}

func (m *Manager) set(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = s.clone()
}

// Login exchanges credentials for a session and persists it.
func (m *Manager) Login(ctx context.Context, c Credentials) (*Session, error) {
	if strings.TrimSpace(c.Username) == "" || c.Password == "" {
		return nil, fault.Validation("session.login", "username and password are required")
	}

	var resp AuthResponse
	err := m.api.Do(ctx, http.MethodPost, "/auth/login",
		loginRequest{UsernameOrEmail: strings.TrimSpace(c.Username), Password: c.Password},
		&resp, resource.Anonymous())
	if err != nil {
		return nil, fmt.Errorf("session: login: %w", err)
	}
	return m.establish(ctx, "session.login", resp)
}

// Register creates an account and logs into it.
func (m *Manager) Register(ctx context.Context, r Registration) (*Session, error) {
	const op = "session.register"
	switch {
	case strings.TrimSpace(r.Username) == "":
		return nil, fault.Validation(op, "username is required")
	case !strings.Contains(r.Email, "@"):
		return nil, fault.Validation(op, "a valid email is required")
	case len(r.Password) < 8:
		return nil, fault.Validation(op, "password must be at least 8 characters")
	}
	if r.Role == "" {
		r.Role = lifecycle.RoleTenant
	}
	if r.Role != lifecycle.RoleTenant && r.Role != lifecycle.RoleLandlord {
		return nil, fault.Validation(op, "role must be tenant or landlord")
	}

	var resp AuthResponse
	err := m.api.Do(ctx, http.MethodPost, "/auth/register", registerRequest{
		Username: strings.TrimSpace(r.Username),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
		Phone:    r.Phone,
		Role:     r.Role,
	}, &resp, resource.Anonymous())
	if err != nil {
		return nil, fmt.Errorf("session: register: %w", err)
	}
	return m.establish(ctx, op, resp)
}

func (m *Manager) establish(ctx context.Context, op string, resp AuthResponse) (*Session, error) {
	s := &Session{Token: resp.AccessToken, User: resp.User}
	if !s.Authenticated() {
		return nil, fault.Authentication(op, "server returned an incomplete session")
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: persist: %w", err)
	}
	m.set(s)
	m.logger.Info("session established",
		zap.String("user_id", s.User.ID),
		zap.String("role", string(s.User.Role)),
	)
	return s.clone(), nil
}

// Restore rebuilds the session from the store. A cached user is trusted
// without a network call; a bare token is resolved through /users/me. When
// the credential is expired or cannot be resolved, all persisted state is
// evicted and Restore returns nil with no error. Concurrent calls share one
// restoration.
func (m *Manager) Restore(ctx context.Context) (*Session, error) {
	v, err, _ := m.restoring.Do("restore", func() (any, error) {
		return m.restore(ctx)
	})
	if err != nil {
		return nil, err
	}
	s, _ := v.(*Session)
	return s.clone(), nil
}

func (m *Manager) restore(ctx context.Context) (*Session, error) {
	stored, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: restore: %w", err)
	}
	if stored == nil {
		m.set(nil)
		return nil, nil
	}
	if stored.Token == "" {
		return nil, m.evict(ctx, "stored session has no token")
	}
	if tokenExpired(stored.Token, m.now()) {
		return nil, m.evict(ctx, "stored credential expired")
	}
	if stored.Authenticated() {
		m.set(stored)
		return stored, nil
	}

	var user User
	if err := m.api.Do(ctx, http.MethodGet, "/users/me", nil, &user, resource.WithBearer(stored.Token)); err != nil {
		m.logger.Warn("resolving cached token failed", zap.Error(err))
		return nil, m.evict(ctx, "cached token could not be resolved")
	}
	s := &Session{Token: stored.Token, User: &user}
	if !s.Authenticated() {
		return nil, m.evict(ctx, "current user response was empty")
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("session: persist: %w", err)
	}
	m.set(s)
	return s, nil
}

func (m *Manager) evict(ctx context.Context, reason string) error {
	m.set(nil)
	m.logger.Info("session evicted", zap.String("reason", reason))
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: evict: %w", err)
	}
	return nil
}

// Logout revokes the credential remotely when it can and always clears the
// local session. Only a failure to clear local state is returned.
func (m *Manager) Logout(ctx context.Context) error {
	if token := m.Token(); token != "" {
		err := m.api.Do(ctx, http.MethodPost, "/auth/logout", nil, nil, resource.WithBearer(token), resource.Anonymous())
		if err != nil && !errors.Is(err, fault.ErrAuthentication) {
			m.logger.Warn("remote logout failed", zap.Error(err))
		}
	}

	m.set(nil)
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	m.logger.Info("session cleared")
	return nil
}

// Invalidate drops the session after the API rejected its credential.
func (m *Manager) Invalidate(ctx context.Context) {
	if m.Current() == nil {
		return
	}
	if err := m.evict(ctx, "credential rejected by server"); err != nil {
		m.logger.Error("clearing rejected session failed", zap.Error(err))
	}
}
