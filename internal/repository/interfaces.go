package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/models"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair is rejected
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when registering an email that already exists
	ErrEmailTaken = errors.New("email already registered")
	// ErrInsufficientPoints is returned when a points adjustment would go below zero
	ErrInsufficientPoints = errors.New("insufficient points")
)

// AuthRepository is the credential side of the remote data service. An
// instance is bound to one session and keeps that session's token in the
// session's local storage.
type AuthRepository interface {
	SignUp(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignIn(ctx context.Context, email, password string) (*models.AuthSession, error)
	SignOut(ctx context.Context) error
	// CurrentSession returns nil when there is no valid credential session
	CurrentSession(ctx context.Context) (*models.AuthSession, error)
	DeleteUser(ctx context.Context, userID string) error
}

// FamilyRepository defines the interface for family data operations
type FamilyRepository interface {
	Create(ctx context.Context, family *models.Family) (*models.Family, error)
	GetByID(ctx context.Context, id string) (*models.Family, error)
	GetByCode(ctx context.Context, code string) (*models.Family, error)
	Delete(ctx context.Context, id string) error
}

// MemberRepository defines the interface for family member operations
type MemberRepository interface {
	Create(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error)
	GetByID(ctx context.Context, id string) (*models.FamilyMember, error)
	GetByUserAndRole(ctx context.Context, userID string, role models.Role) (*models.FamilyMember, error)
	// ListByFamily returns members ordered by creation time ascending
	ListByFamily(ctx context.Context, familyID string) ([]*models.FamilyMember, error)
	// AdjustPoints adds delta to the member's balance and returns the new
	// balance, or ErrInsufficientPoints if it would drop below zero
	AdjustPoints(ctx context.Context, memberID string, delta int) (int, error)
}

// ChoreRepository defines the interface for chore operations
type ChoreRepository interface {
	Create(ctx context.Context, chore *models.Chore) (*models.Chore, error)
	GetByID(ctx context.Context, id string) (*models.Chore, error)
	ListByFamily(ctx context.Context, familyID string, filters ChoreFilters) ([]*models.Chore, error)
	UpdateStatus(ctx context.Context, id string, status models.ChoreStatus) error
	CreateCompletion(ctx context.Context, completion *models.ChoreCompletion) (*models.ChoreCompletion, error)
	GetCompletion(ctx context.Context, id string) (*models.ChoreCompletion, error)
	// PendingCompletion returns the oldest unverified completion of a chore
	PendingCompletion(ctx context.Context, choreID string) (*models.ChoreCompletion, error)
	MarkVerified(ctx context.Context, completionID, verifierID string, at time.Time) error
}

// RewardRepository defines the interface for reward operations
type RewardRepository interface {
	Create(ctx context.Context, reward *models.Reward) (*models.Reward, error)
	GetByID(ctx context.Context, id string) (*models.Reward, error)
	ListByFamily(ctx context.Context, familyID string) ([]*models.Reward, error)
	CreateRedemption(ctx context.Context, redemption *models.RewardRedemption) (*models.RewardRedemption, error)
	GetRedemption(ctx context.Context, id string) (*models.RewardRedemption, error)
	MarkApproved(ctx context.Context, redemptionID, approverID string, at time.Time) error
}

// ChoreFilters represents filters for querying chores
type ChoreFilters struct {
	Status     *models.ChoreStatus
	AssignedTo *string
	Limit      int
}

// Match reports whether a chore passes the filters, for backends that filter
// in memory
func (f ChoreFilters) Match(c *models.Chore) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.AssignedTo != nil && (c.AssignedTo == nil || *c.AssignedTo != *f.AssignedTo) {
		return false
	}
	return true
}
