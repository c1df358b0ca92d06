package sandbox

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"rentflow/auth"
	"rentflow/session"
)

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}
	if req.UsernameOrEmail == "" || req.Password == "" {
		return writeError(c, http.StatusUnprocessableEntity, "username_or_email and password are required")
	}

	res, err := s.auth.Login(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return writeError(c, http.StatusUnauthorized, "invalid credentials")
		}
		s.logger.Error("login failed", zap.Error(err))
		return writeError(c, http.StatusInternalServerError, "failed to login")
	}
	return c.JSON(http.StatusOK, s.authResponse(res))
}

func (s *Server) handleRegister(c echo.Context) error {
	var req auth.RegisterRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid request body")
	}

	res, err := s.auth.Register(c.Request().Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrDuplicateUser):
		return writeError(c, http.StatusConflict, "username or email already taken")
	default:
		return writeError(c, http.StatusUnprocessableEntity, err.Error())
	}
	s.logger.Info("user registered",
		zap.String("user_id", res.User.ID),
		zap.String("role", string(res.User.Role)),
	)
	return c.JSON(http.StatusCreated, s.authResponse(res))
}

func (s *Server) handleLogout(c echo.Context) error {
	token := bearer(c.Request())
	if token == "" {
		return writeError(c, http.StatusUnauthorized, "authentication required")
	}
	if err := s.auth.Revoke(token); err != nil {
		return writeError(c, http.StatusUnauthorized, "invalid or expired token")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleMe(c echo.Context) error {
	user, err := s.auth.GetUserByID(c.Request().Context(), actorOf(c).UserID)
	if err != nil {
		return writeError(c, http.StatusUnauthorized, "unknown user")
	}
	return c.JSON(http.StatusOK, sessionUser(user))
}

func (s *Server) handleUnreadCount(c echo.Context) error {
	s.mu.Lock()
	count := s.unread[actorOf(c).UserID]
	s.mu.Unlock()
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (s *Server) authResponse(res auth.LoginResult) session.AuthResponse {
	return session.AuthResponse{
		AccessToken: res.Token,
		TokenType:   "Bearer",
		ExpiresIn:   int(res.ExpiresAt.Sub(s.engine.Now()) / time.Second),
		User:        sessionUser(res.User),
	}
}

func sessionUser(u auth.User) *session.User {
	created := u.CreatedAt
	return &session.User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		CreatedAt: &created,
	}
}

// notify bumps the unread counter of userID. Callers hold s.mu.
func (s *Server) notify(userID string) {
	if userID != "" {
		s.unread[userID]++
	}
}
