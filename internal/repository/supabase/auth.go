package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

type authRepository struct {
	c     *Client
	store storage.Store
}

// NewAuthRepository creates a GoTrue client for one session. The session's
// tokens are kept in store.
func NewAuthRepository(c *Client, store storage.Store) repository.AuthRepository {
	return &authRepository{c: c, store: store}
}

func (r *authRepository) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	data, err := r.c.request(ctx, http.MethodPost, "/auth/v1/signup", nil, map[string]string{
		"email":    email,
		"password": password,
	}, r.c.anonKey, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isEmailTaken(apiErr) {
			return nil, repository.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}

	s, err := parseTokenResponse(data)
	if err != nil {
		return nil, err
	}
	if err := repository.SaveAuthSession(ctx, r.store, s); err != nil {
		return nil, repository.AbandonSignUp(ctx, r, s.UserID, err)
	}
	return s, nil
}

func (r *authRepository) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	q := url.Values{"grant_type": {"password"}}
	data, err := r.c.request(ctx, http.MethodPost, "/auth/v1/token", q, map[string]string{
		"email":    email,
		"password": password,
	}, r.c.anonKey, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusBadRequest {
			return nil, repository.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}

	s, err := parseTokenResponse(data)
	if err != nil {
		return nil, err
	}
	if err := repository.SaveAuthSession(ctx, r.store, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *authRepository) SignOut(ctx context.Context) error {
	current, err := repository.LoadAuthSession(ctx, r.store)
	if err != nil {
		return err
	}
	if current != nil {
		_, err := r.c.request(ctx, http.MethodPost, "/auth/v1/logout", nil, nil, current.AccessToken, nil)
		var apiErr *APIError
		if err != nil && !(errors.As(err, &apiErr) && apiErr.StatusCode < 500) {
			return fmt.Errorf("failed to sign out: %w", err)
		}
	}
	return repository.ClearAuthSession(ctx, r.store)
}

// CurrentSession validates the stored access token with GoTrue, refreshing
// it first if it has expired. A token the server rejects is dropped.
func (r *authRepository) CurrentSession(ctx context.Context) (*models.AuthSession, error) {
	current, err := repository.LoadAuthSession(ctx, r.store)
	if err != nil || current == nil {
		return nil, err
	}

	if current.IsExpired() {
		if current.RefreshToken == "" {
			return nil, repository.ClearAuthSession(ctx, r.store)
		}
		refreshed, err := r.refresh(ctx, current.RefreshToken)
		if err != nil {
			if isRejected(err) {
				return nil, repository.ClearAuthSession(ctx, r.store)
			}
			return nil, err
		}
		if err := repository.SaveAuthSession(ctx, r.store, refreshed); err != nil {
			return nil, err
		}
		current = refreshed
	}

	data, err := r.c.request(ctx, http.MethodGet, "/auth/v1/user", nil, nil, current.AccessToken, nil)
	if err != nil {
		if isRejected(err) {
			return nil, repository.ClearAuthSession(ctx, r.store)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user := gjson.ParseBytes(data)
	current.UserID = user.Get("id").String()
	current.Email = user.Get("email").String()
	if current.UserID == "" {
		return nil, repository.ClearAuthSession(ctx, r.store)
	}
	return current, nil
}

func (r *authRepository) refresh(ctx context.Context, refreshToken string) (*models.AuthSession, error) {
	q := url.Values{"grant_type": {"refresh_token"}}
	data, err := r.c.request(ctx, http.MethodPost, "/auth/v1/token", q, map[string]string{
		"refresh_token": refreshToken,
	}, r.c.anonKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return parseTokenResponse(data)
}

// DeleteUser removes the credential through the admin API, which requires
// the service key
func (r *authRepository) DeleteUser(ctx context.Context, userID string) error {
	if r.c.serviceKey == "" {
		return fmt.Errorf("failed to delete user %s: service key not configured", userID)
	}
	_, err := r.c.request(ctx, http.MethodDelete, "/auth/v1/admin/users/"+url.PathEscape(userID), nil, nil, r.c.serviceKey, nil)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// parseTokenResponse reads a GoTrue session. Signup with email confirmation
// enabled returns the user without tokens, which cannot start a session.
func parseTokenResponse(data []byte) (*models.AuthSession, error) {
	res := gjson.ParseBytes(data)
	s := &models.AuthSession{
		UserID:       res.Get("user.id").String(),
		Email:        res.Get("user.email").String(),
		AccessToken:  res.Get("access_token").String(),
		RefreshToken: res.Get("refresh_token").String(),
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("no session returned; email confirmation may be pending")
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("session response without user id")
	}

	switch {
	case res.Get("expires_at").Exists():
		s.ExpiresAt = time.Unix(res.Get("expires_at").Int(), 0)
	case res.Get("expires_in").Exists():
		s.ExpiresAt = time.Now().Add(time.Duration(res.Get("expires_in").Int()) * time.Second)
	default:
		s.ExpiresAt = tokenExpiry(s.AccessToken)
	}
	return s, nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// server validates the token on every call.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

func isEmailTaken(e *APIError) bool {
	if e.Code == "user_already_exists" || e.Code == "email_exists" {
		return true
	}
	return e.StatusCode == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(e.Message), "already registered")
}

// isRejected reports whether GoTrue refused the token, as opposed to being
// unreachable
func isRejected(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
