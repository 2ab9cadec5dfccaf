package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/storage"
)

// persist writes {user, family} to local storage
func (m *Manager) persist(ctx context.Context, user models.User, family *models.Family) error {
	userData, err := json.Marshal(models.EncodeUser(user))
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	familyData, err := json.Marshal(family)
	if err != nil {
		return fmt.Errorf("failed to encode family: %w", err)
	}

	if err := m.storage.Set(ctx, storage.KeyUser, userData); err != nil {
		return err
	}
	return m.storage.Set(ctx, storage.KeyFamily, familyData)
}

// clearCache removes {user, family} from local storage
func (m *Manager) clearCache(ctx context.Context) error {
	return m.storage.Remove(ctx, storage.KeyUser, storage.KeyFamily)
}

// forget removes everything the session keeps locally, including a
// credential session the remote sign-out could not revoke
func (m *Manager) forget(ctx context.Context) error {
	return m.storage.Remove(ctx, storage.KeyUser, storage.KeyFamily, storage.KeyAuthSession)
}

// errCorruptCache marks a cached session that cannot be decoded
var errCorruptCache = errors.New("corrupt cached session")

// loadCache reads the cached session. It returns nil, nil, nil when nothing
// is cached and errCorruptCache when the records are incomplete or invalid.
func (m *Manager) loadCache(ctx context.Context) (models.User, *models.Family, error) {
	userData, hasUser, err := m.storage.Get(ctx, storage.KeyUser)
	if err != nil {
		return nil, nil, err
	}
	familyData, hasFamily, err := m.storage.Get(ctx, storage.KeyFamily)
	if err != nil {
		return nil, nil, err
	}
	if !hasUser && !hasFamily {
		return nil, nil, nil
	}
	if !hasUser || !hasFamily {
		return nil, nil, errCorruptCache
	}

	var stored models.StoredUser
	if err := json.Unmarshal(userData, &stored); err != nil {
		return nil, nil, errCorruptCache
	}
	user, err := stored.Decode()
	if err != nil {
		return nil, nil, errCorruptCache
	}

	var family models.Family
	if err := json.Unmarshal(familyData, &family); err != nil || family.ID == "" || family.Code == "" {
		return nil, nil, errCorruptCache
	}
	return user, &family, nil
}
