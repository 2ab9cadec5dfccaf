package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/familycode"
	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

// Operation names used for logging and metrics
const (
	OpRegisterParent  = "register_parent"
	OpLoginParent     = "login_parent"
	OpLoginChild      = "login_child"
	OpLogout          = "logout"
	OpCreateFamily    = "create_family"
	OpAddFamilyMember = "add_family_member"
	OpGetFamilyByCode = "get_family_by_code"
	OpGetMembers      = "get_family_members"
	OpRefreshMembers  = "refresh_members"
	OpRestoreSession  = "restore_session"
)

// ParentMemberName is the display name of the member row created for a
// registering parent
const ParentMemberName = "Parent"

// RegisterParent creates a credential, a family owned by it and the parent's
// member row, then signs the parent in
func (m *Manager) RegisterParent(ctx context.Context, email, password, familyName string) error {
	return m.run(ctx, OpRegisterParent, func(ctx context.Context) error {
		const op = OpRegisterParent

		sess, err := m.auth.SignUp(ctx, email, password)
		if err != nil {
			if errors.Is(err, repository.ErrEmailTaken) {
				return serviceError(op, "An account with this email already exists", err)
			}
			return serviceError(op, "Failed to register", err)
		}

		family, err := m.newFamily(ctx, op, familyName, sess.UserID)
		if err != nil {
			m.compensate(ctx, op, m.undoCredential(sess.UserID)...)
			return err
		}

		parent, err := m.members.Create(ctx, &models.FamilyMember{
			FamilyID: family.ID,
			UserID:   &sess.UserID,
			Name:     ParentMemberName,
			Role:     models.RoleParent,
			Points:   0,
		})
		if err != nil {
			steps := append([]compensation{{
				name: "delete family",
				fn:   func(ctx context.Context) error { return m.families.Delete(ctx, family.ID) },
			}}, m.undoCredential(sess.UserID)...)
			m.compensate(ctx, op, steps...)
			return serviceError(op, "Failed to add you to the family", err)
		}

		user := models.ParentUser{ID: sess.UserID, Email: sess.Email, FamilyID: family.ID}
		if err := m.persist(ctx, user, family); err != nil {
			return storageError(op, err)
		}
		m.setSession(user, family, []*models.FamilyMember{parent})

		m.logger.WithFields(logrus.Fields{
			"family_id": family.ID,
			"member_id": parent.ID,
		}).Info("Parent registered")
		return nil
	})
}

// LoginParent signs a parent in with email and password
func (m *Manager) LoginParent(ctx context.Context, email, password string) error {
	return m.run(ctx, OpLoginParent, func(ctx context.Context) error {
		const op = OpLoginParent

		sess, err := m.auth.SignIn(ctx, email, password)
		if err != nil {
			if errors.Is(err, repository.ErrInvalidCredentials) {
				return serviceError(op, "Invalid email or password", err)
			}
			return serviceError(op, "Failed to login", err)
		}

		user, family, members, err := m.resolveParent(ctx, op, sess.UserID, sess.Email)
		if err != nil {
			return err
		}

		if err := m.persist(ctx, user, family); err != nil {
			return storageError(op, err)
		}
		m.setSession(user, family, members)
		return nil
	})
}

// resolveParent loads the member row, family and roster of a credential
func (m *Manager) resolveParent(ctx context.Context, op, userID, email string) (models.ParentUser, *models.Family, []*models.FamilyMember, error) {
	var user models.ParentUser

	member, err := m.members.GetByUserAndRole(ctx, userID, models.RoleParent)
	if err != nil {
		return user, nil, nil, serviceError(op, "Failed to load your family profile", err)
	}
	if member == nil {
		return user, nil, nil, notFound(op, "No family found for this account")
	}

	family, err := m.families.GetByID(ctx, member.FamilyID)
	if err != nil {
		return user, nil, nil, serviceError(op, "Failed to load your family", err)
	}
	if family == nil {
		return user, nil, nil, notFound(op, "Family not found")
	}

	members, err := m.members.ListByFamily(ctx, family.ID)
	if err != nil {
		return user, nil, nil, serviceError(op, "Failed to load family members", err)
	}

	user = models.ParentUser{ID: userID, Email: email, FamilyID: family.ID}
	return user, family, members, nil
}

// LoginChild signs a child in by picking their profile from the roster of
// the family with the given join code. No secret is checked.
func (m *Manager) LoginChild(ctx context.Context, familyCode, memberID string) error {
	return m.run(ctx, OpLoginChild, func(ctx context.Context) error {
		const op = OpLoginChild

		family, err := m.families.GetByCode(ctx, familycode.Normalize(familyCode))
		if err != nil {
			return serviceError(op, "Failed to look up family", err)
		}
		if family == nil {
			return notFound(op, "Family not found with that code")
		}

		members, err := m.members.ListByFamily(ctx, family.ID)
		if err != nil {
			return serviceError(op, "Failed to load family members", err)
		}

		var child *models.FamilyMember
		for _, member := range members {
			if member.ID == memberID && member.IsChild() {
				child = member
				break
			}
		}
		if child == nil {
			return notFound(op, "Child not found in this family")
		}

		// a parent credential left on this device would win over the child
		// on the next restore
		m.dropCredential(ctx, op)

		user := models.ChildUser{MemberID: child.ID, FamilyID: family.ID}
		if err := m.persist(ctx, user, family); err != nil {
			return storageError(op, err)
		}
		m.setSession(user, family, members)
		return nil
	})
}

// Logout ends the session. Local state is always cleared, even if the remote
// sign-out fails.
func (m *Manager) Logout(ctx context.Context) error {
	return m.run(ctx, OpLogout, func(ctx context.Context) error {
		user, _ := m.current()
		if user != nil && user.UserRole() == models.RoleParent {
			if err := m.auth.SignOut(ctx); err != nil {
				m.logger.WithField("operation", OpLogout).WithError(err).Warn("Remote sign-out failed")
			}
		}

		err := m.forget(ctx)
		m.reset()
		if err != nil {
			return storageError(OpLogout, err)
		}
		return nil
	})
}

// dropCredential signs out a stored credential session, if any
func (m *Manager) dropCredential(ctx context.Context, op string) {
	existing, err := repository.LoadAuthSession(ctx, m.storage)
	if err != nil || existing == nil {
		return
	}
	if err := m.auth.SignOut(ctx); err != nil {
		m.logger.WithField("operation", op).WithError(err).Warn("Failed to drop stale credential session")
	}
}

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

func (m *Manager) undoCredential(userID string) []compensation {
	return []compensation{
		{name: "delete credential", fn: func(ctx context.Context) error { return m.auth.DeleteUser(ctx, userID) }},
		{name: "sign out", fn: m.auth.SignOut},
	}
}

// compensate runs every step even if earlier ones fail. Failures are logged,
// never retried and never returned.
func (m *Manager) compensate(ctx context.Context, op string, steps ...compensation) {
	ctx = context.WithoutCancel(ctx)

	var result *multierror.Error
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		m.logger.WithFields(logrus.Fields{
			"operation": op,
			"failed":    len(result.Errors),
		}).WithError(err).Error("Compensation failed; remote rows may be orphaned")
		return
	}
	m.logger.WithField("operation", op).Info("Compensated partial registration")
}
