package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

// pq error code for unique_violation
const uniqueViolation = "23505"

type authRepository struct {
	db    *sql.DB
	store storage.Store
	ttl   time.Duration
	cost  int
}

// NewAuthRepository creates a credential client for one session. Issued
// tokens are kept in store and expire after ttl.
func NewAuthRepository(db *sql.DB, store storage.Store, ttl time.Duration) repository.AuthRepository {
	return &authRepository{db: db, store: store, ttl: ttl, cost: bcrypt.DefaultCost}
}

func (r *authRepository) SignUp(ctx context.Context, email, password string) (*models.AuthSession, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), r.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	userID := uuid.NewString()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		userID, email, string(hash), time.Now(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, repository.ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s, err := r.issue(ctx, userID, email)
	if err != nil {
		return nil, repository.AbandonSignUp(ctx, r, userID, err)
	}
	return s, nil
}

func (r *authRepository) SignIn(ctx context.Context, email, password string) (*models.AuthSession, error) {
	email = normalizeEmail(email)

	var userID, hash string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM auth_users WHERE email = $1`, email,
	).Scan(&userID, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, repository.ErrInvalidCredentials
	}

	return r.issue(ctx, userID, email)
}

func (r *authRepository) issue(ctx context.Context, userID, email string) (*models.AuthSession, error) {
	s := &models.AuthSession{
		UserID:      userID,
		Email:       email,
		AccessToken: uuid.NewString(),
		ExpiresAt:   time.Now().Add(r.ttl).UTC(),
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auth_sessions (token, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		s.AccessToken, s.UserID, s.ExpiresAt, time.Now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth session: %w", err)
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
		if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE token = $1`, current.AccessToken); err != nil {
			return fmt.Errorf("failed to revoke auth session: %w", err)
		}
	}
	return repository.ClearAuthSession(ctx, r.store)
}

func (r *authRepository) CurrentSession(ctx context.Context) (*models.AuthSession, error) {
	current, err := repository.LoadAuthSession(ctx, r.store)
	if err != nil || current == nil {
		return nil, err
	}

	query := `
		SELECT s.user_id, u.email, s.expires_at
		FROM auth_sessions s
		INNER JOIN auth_users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2`

	s := &models.AuthSession{AccessToken: current.AccessToken}
	err = r.db.QueryRowContext(ctx, query, current.AccessToken, time.Now()).Scan(
		&s.UserID, &s.Email, &s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ClearAuthSession(ctx, r.store)
		}
		return nil, fmt.Errorf("failed to get auth session: %w", err)
	}
	return s, nil
}

func (r *authRepository) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM auth_users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SessionPurger removes expired credential sessions
type SessionPurger struct {
	db *sql.DB
}

func NewSessionPurger(db *sql.DB) *SessionPurger {
	return &SessionPurger{db: db}
}

// PurgeExpired deletes every session that expired before now and returns how
// many were removed
func (p *SessionPurger) PurgeExpired(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE expires_at <= $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
