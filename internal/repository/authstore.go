package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

// SaveAuthSession persists a credential session for the owning session
func SaveAuthSession(ctx context.Context, store storage.Store, s *models.AuthSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode auth session: %w", err)
	}
	if err := store.Set(ctx, storage.KeyAuthSession, data); err != nil {
		return fmt.Errorf("failed to persist auth session: %w", err)
	}
	return nil
}

// LoadAuthSession returns the persisted credential session, or nil if none.
// An unreadable record is dropped.
func LoadAuthSession(ctx context.Context, store storage.Store) (*models.AuthSession, error) {
	data, ok, err := store.Get(ctx, storage.KeyAuthSession)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth session: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var s models.AuthSession
	if err := json.Unmarshal(data, &s); err != nil || s.AccessToken == "" {
		return nil, ClearAuthSession(ctx, store)
	}
	return &s, nil
}

// ClearAuthSession removes the persisted credential session
func ClearAuthSession(ctx context.Context, store storage.Store) error {
	if err := store.Remove(ctx, storage.KeyAuthSession); err != nil {
		return fmt.Errorf("failed to clear auth session: %w", err)
	}
	return nil
}

// AbandonSignUp deletes a credential created moments ago whose session could
// not be kept, so the email is not left taken by an unusable account. It
// returns cause, with the cleanup failure attached if there was one.
func AbandonSignUp(ctx context.Context, auth AuthRepository, userID string, cause error) error {
	if err := auth.DeleteUser(context.WithoutCancel(ctx), userID); err != nil {
		return multierror.Append(cause, fmt.Errorf("failed to delete abandoned credential %s: %w", userID, err))
	}
	return cause
}
