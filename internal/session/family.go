package session

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
	"github.com/Kerhoff/ChoreBoT/internal/models"
)

// CreateFamily creates a family owned by the signed-in user and returns it.
// The session's current family does not change.
func (m *Manager) CreateFamily(ctx context.Context, name string) (*models.Family, error) {
	var family *models.Family
	err := m.run(ctx, OpCreateFamily, func(ctx context.Context) error {
		user, _ := m.current()
		if user == nil {
			return notAuthenticated(OpCreateFamily)
		}
		var err error
		family, err = m.newFamily(ctx, OpCreateFamily, name, user.UserID())
		return err
	})
	if err != nil {
		return nil, err
	}
	return family, nil
}

// newFamily inserts a family under a join code no other family uses
func (m *Manager) newFamily(ctx context.Context, op, name, ownerID string) (*models.Family, error) {
	exists := func(ctx context.Context, code string) (bool, error) {
		f, err := m.families.GetByCode(ctx, code)
		return f != nil, err
	}

	code, attempts, err := m.policy.Unique(ctx, m.codes, exists)
	m.recorder.ObserveCodeAttempts(attempts)
	if err != nil {
		if errors.Is(err, familycode.ErrExhausted) {
			return nil, serviceError(op, "Could not generate a unique family code, please try again", err)
		}
		return nil, serviceError(op, "Failed to create family", err)
	}
	if attempts > 1 {
		m.logger.WithFields(logrus.Fields{
			"operation": op,
			"attempts":  attempts,
		}).Debug("Family code collided, regenerated")
	}

	family, err := m.families.Create(ctx, &models.Family{
		Name:    name,
		Code:    code,
		OwnerID: ownerID,
	})
	if err != nil {
		return nil, serviceError(op, "Failed to create family", err)
	}
	return family, nil
}

// AddFamilyMember adds a child to the current family and appends it to the
// roster
func (m *Manager) AddFamilyMember(ctx context.Context, name string, age *int, avatar *string) (*models.FamilyMember, error) {
	var member *models.FamilyMember
	err := m.run(ctx, OpAddFamilyMember, func(ctx context.Context) error {
		_, family := m.current()
		if family == nil {
			return noFamily(OpAddFamilyMember)
		}

		created, err := m.members.Create(ctx, &models.FamilyMember{
			FamilyID: family.ID,
			Name:     name,
			Age:      age,
			Avatar:   avatar,
			Role:     models.RoleChild,
			Points:   0,
		})
		if err != nil {
			return serviceError(OpAddFamilyMember, "Failed to add family member", err)
		}

		m.mu.Lock()
		m.state.Members = append(m.state.Members, created)
		m.mu.Unlock()
		member = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// GetFamilyByCode looks a family up by join code, ignoring case. A missing
// family is not an error.
func (m *Manager) GetFamilyByCode(ctx context.Context, code string) (*models.Family, error) {
	var family *models.Family
	err := m.run(ctx, OpGetFamilyByCode, func(ctx context.Context) error {
		var err error
		family, err = m.families.GetByCode(ctx, familycode.Normalize(code))
		if err != nil {
			return serviceError(OpGetFamilyByCode, "Failed to look up family", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return family, nil
}

// GetFamilyMembers returns the roster of a family, oldest first. Failures
// are logged and yield an empty roster.
func (m *Manager) GetFamilyMembers(ctx context.Context, familyID string) []*models.FamilyMember {
	members := []*models.FamilyMember{}
	// the roster read is non-critical: failures are logged here and never
	// become the session error, so run always succeeds
	_ = m.run(ctx, OpGetMembers, func(ctx context.Context) error {
		list, err := m.members.ListByFamily(ctx, familyID)
		if err != nil {
			m.logger.WithFields(logrus.Fields{
				"operation": OpGetMembers,
				"family_id": familyID,
			}).WithError(err).Warn("Failed to list family members")
			return nil
		}
		members = append(members, list...)
		return nil
	})
	return members
}

// RefreshMembers re-fetches the roster of the current family, picking up
// point changes made through chores and rewards
func (m *Manager) RefreshMembers(ctx context.Context) error {
	return m.run(ctx, OpRefreshMembers, func(ctx context.Context) error {
		_, family := m.current()
		if family == nil {
			return noFamily(OpRefreshMembers)
		}
		members, err := m.members.ListByFamily(ctx, family.ID)
		if err != nil {
			return serviceError(OpRefreshMembers, "Failed to load family members", err)
		}
		m.mu.Lock()
		m.state.Members = members
		m.mu.Unlock()
		return nil
	})
}
