package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/models"
)

// RestoreSession resolves the session at start-up. A live credential session
// takes precedence; otherwise the cached {user, family} is revalidated
// against the data service before it is trusted. Finding no session is not
// an error.
func (m *Manager) RestoreSession(ctx context.Context) error {
	return m.run(ctx, OpRestoreSession, func(ctx context.Context) error {
		if m.restoreFromCredential(ctx) {
			return nil
		}
		return m.restoreFromCache(ctx)
	})
}

// restoreFromCredential reports whether a parent session was restored. Any
// failure falls through to the cache.
func (m *Manager) restoreFromCredential(ctx context.Context) bool {
	log := m.logger.WithField("operation", OpRestoreSession)

	sess, err := m.auth.CurrentSession(ctx)
	if err != nil {
		log.WithError(err).Warn("Credential session check failed, trying cached session")
		return false
	}
	if sess == nil {
		return false
	}

	user, family, members, err := m.resolveParent(ctx, OpRestoreSession, sess.UserID, sess.Email)
	if err != nil {
		log.WithError(err).Debug("Credential session has no usable family, trying cached session")
		return false
	}

	if err := m.persist(ctx, user, family); err != nil {
		log.WithError(err).Warn("Failed to refresh cached session")
		return false
	}
	m.setSession(user, family, members)

	log.WithFields(logrus.Fields{
		"family_id": family.ID,
		"source":    "credential",
	}).Info("Session restored")
	return true
}

func (m *Manager) restoreFromCache(ctx context.Context) error {
	const op = OpRestoreSession
	log := m.logger.WithField("operation", op)

	user, cached, err := m.loadCache(ctx)
	if errors.Is(err, errCorruptCache) {
		log.Warn("Discarding unreadable cached session")
		return m.discardCache(ctx)
	}
	if err != nil {
		return storageError(op, err)
	}
	if user == nil {
		return nil
	}

	family, err := m.families.GetByCode(ctx, cached.Code)
	if err != nil {
		return serviceError(op, "Failed to restore session", err)
	}
	if family == nil || family.ID != cached.ID || user.UserFamilyID() != family.ID {
		log.WithField("family_id", cached.ID).Info("Cached family no longer valid")
		return m.discardCache(ctx)
	}

	members, err := m.members.ListByFamily(ctx, family.ID)
	if err != nil {
		return serviceError(op, "Failed to restore session", err)
	}

	if user.UserRole() == models.RoleChild && !hasChild(members, user.UserID()) {
		log.WithField("member_id", user.UserID()).Info("Cached child no longer in family")
		return m.discardCache(ctx)
	}

	m.setSession(user, family, members)
	log.WithFields(logrus.Fields{
		"family_id": family.ID,
		"source":    "cache",
	}).Info("Session restored")
	return nil
}

func (m *Manager) discardCache(ctx context.Context) error {
	if err := m.clearCache(ctx); err != nil {
		return storageError(OpRestoreSession, err)
	}
	return nil
}

func hasChild(members []*models.FamilyMember, memberID string) bool {
	for _, member := range members {
		if member.ID == memberID && member.IsChild() {
			return true
		}
	}
	return false
}
