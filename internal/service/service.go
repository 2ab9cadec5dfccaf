package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
	"github.com/Kerhoff/ChoreBoT/internal/validation"
)

var (
	// ErrForbidden is returned when the acting member's role may not perform
	// an action
	ErrForbidden = errors.New("not allowed")
	// ErrNotFound is returned when a chore, completion, reward or member does
	// not exist in the acting member's family
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a chore or redemption is not in a state
	// that allows the action
	ErrConflict = errors.New("conflict")
)

// Service is the business logic layer for chores, rewards and points. Every
// action is performed by an acting family member, usually the session's
// CurrentMember.
type Service struct {
	logger  *logrus.Logger
	Members repository.MemberRepository
	Chores  repository.ChoreRepository
	Rewards repository.RewardRepository
	now     func() time.Time
}

// New creates a new Service with all required dependencies.
func New(logger *logrus.Logger,
	members repository.MemberRepository,
	chores repository.ChoreRepository,
	rewards repository.RewardRepository,
) *Service {
	return &Service{
		logger:  logger,
		Members: members, Chores: chores, Rewards: rewards,
		now: time.Now,
	}
}

func requireRole(actor *models.FamilyMember, role models.Role, action string) error {
	if actor == nil || actor.Role != role {
		return fmt.Errorf("%w: only a %s can %s", ErrForbidden, role, action)
	}
	return nil
}

// ChoreInput is the data of a new chore
type ChoreInput struct {
	Title       string
	Description string
	Points      int
	AssignedTo  *string
	DueDate     *time.Time
}

// CreateChore adds a chore to the actor's family. Only parents create
// chores; an assignee must be a child of the same family.
func (s *Service) CreateChore(ctx context.Context, actor *models.FamilyMember, in ChoreInput) (*models.Chore, error) {
	if err := requireRole(actor, models.RoleParent, "create chores"); err != nil {
		return nil, err
	}
	if err := validation.Chore(in.Title, in.Points); err != nil {
		return nil, err
	}

	if in.AssignedTo != nil {
		child, err := s.Members.GetByID(ctx, *in.AssignedTo)
		if err != nil {
			return nil, fmt.Errorf("failed to lookup assignee %s: %w", *in.AssignedTo, err)
		}
		if child == nil || child.FamilyID != actor.FamilyID || !child.IsChild() {
			return nil, fmt.Errorf("%w: assignee %s is not a child of this family", ErrNotFound, *in.AssignedTo)
		}
	}

	chore := &models.Chore{
		FamilyID:   actor.FamilyID,
		Title:      strings.TrimSpace(in.Title),
		Points:     in.Points,
		AssignedTo: in.AssignedTo,
		CreatedBy:  actor.ID,
		DueDate:    in.DueDate,
		Status:     models.ChoreStatusPending,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		chore.Description = &d
	}

	created, err := s.Chores.Create(ctx, chore)
	if err != nil {
		return nil, fmt.Errorf("failed to create chore: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"family_id": actor.FamilyID,
		"chore_id":  created.ID,
		"points":    created.Points,
	}).Info("Chore created")
	return created, nil
}

// ListChores returns the family's chores, newest first
func (s *Service) ListChores(ctx context.Context, familyID string, filters repository.ChoreFilters) ([]*models.Chore, error) {
	chores, err := s.Chores.ListByFamily(ctx, familyID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list chores for family %s: %w", familyID, err)
	}
	return chores, nil
}

// choreInFamily loads a chore and checks it belongs to familyID
func (s *Service) choreInFamily(ctx context.Context, choreID, familyID string) (*models.Chore, error) {
	chore, err := s.Chores.GetByID(ctx, choreID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chore %s: %w", choreID, err)
	}
	if chore == nil || chore.FamilyID != familyID {
		return nil, fmt.Errorf("%w: chore %s", ErrNotFound, choreID)
	}
	return chore, nil
}

// CompleteChore records a child finishing a pending chore assigned to them
// or to nobody. Points are awarded once a parent verifies it.
func (s *Service) CompleteChore(ctx context.Context, actor *models.FamilyMember, choreID, notes string) (*models.ChoreCompletion, error) {
	if err := requireRole(actor, models.RoleChild, "complete chores"); err != nil {
		return nil, err
	}

	chore, err := s.choreInFamily(ctx, choreID, actor.FamilyID)
	if err != nil {
		return nil, err
	}
	if !chore.IsPending() {
		return nil, fmt.Errorf("%w: chore %s is already %s", ErrConflict, chore.ID, chore.Status)
	}
	if !chore.AssignableTo(actor.ID) {
		return nil, fmt.Errorf("%w: chore %s is assigned to someone else", ErrForbidden, chore.ID)
	}

	completion := &models.ChoreCompletion{
		ChoreID:     chore.ID,
		CompletedBy: actor.ID,
	}
	if n := strings.TrimSpace(notes); n != "" {
		completion.Notes = &n
	}

	created, err := s.Chores.CreateCompletion(ctx, completion)
	if err != nil {
		return nil, fmt.Errorf("failed to record completion of chore %s: %w", chore.ID, err)
	}
	if err := s.Chores.UpdateStatus(ctx, chore.ID, models.ChoreStatusCompleted); err != nil {
		return nil, fmt.Errorf("failed to mark chore %s completed: %w", chore.ID, err)
	}

	s.logger.WithFields(logrus.Fields{
		"chore_id":  chore.ID,
		"member_id": actor.ID,
	}).Info("Chore completed")
	return created, nil
}

// VerifyChore approves the oldest unverified completion of a chore and
// awards its points to the child who completed it. It returns the child's
// new balance.
func (s *Service) VerifyChore(ctx context.Context, actor *models.FamilyMember, choreID string) (*models.ChoreCompletion, int, error) {
	if err := requireRole(actor, models.RoleParent, "verify chores"); err != nil {
		return nil, 0, err
	}

	chore, err := s.choreInFamily(ctx, choreID, actor.FamilyID)
	if err != nil {
		return nil, 0, err
	}
	completion, err := s.Chores.PendingCompletion(ctx, chore.ID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get completion of chore %s: %w", chore.ID, err)
	}
	if completion == nil {
		return nil, 0, fmt.Errorf("%w: chore %s has no completion awaiting verification", ErrConflict, chore.ID)
	}

	balance, err := s.Members.AdjustPoints(ctx, completion.CompletedBy, chore.Points)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to award points for chore %s: %w", chore.ID, err)
	}

	at := s.now()
	if err := s.Chores.MarkVerified(ctx, completion.ID, actor.ID, at); err != nil {
		err = fmt.Errorf("failed to verify completion %s: %w", completion.ID, err)
		return nil, 0, s.refund(ctx, completion.CompletedBy, -chore.Points, err)
	}
	if err := s.Chores.UpdateStatus(ctx, chore.ID, models.ChoreStatusVerified); err != nil {
		s.logger.WithError(err).WithField("chore_id", chore.ID).Warn("Failed to mark chore verified")
	}

	completion.VerifiedBy = &actor.ID
	completion.VerifiedAt = &at

	s.logger.WithFields(logrus.Fields{
		"chore_id":  chore.ID,
		"member_id": completion.CompletedBy,
		"points":    chore.Points,
		"balance":   balance,
	}).Info("Chore verified")
	return completion, balance, nil
}

// refund reverses a points adjustment after a later step failed. The
// original failure is returned, joined with the refund's failure if any.
func (s *Service) refund(ctx context.Context, memberID string, delta int, cause error) error {
	var result *multierror.Error
	result = multierror.Append(result, cause)

	if _, err := s.Members.AdjustPoints(context.WithoutCancel(ctx), memberID, delta); err != nil {
		result = multierror.Append(result, fmt.Errorf("refund %+d points to %s: %w", delta, memberID, err))
		s.logger.WithFields(logrus.Fields{
			"member_id": memberID,
			"delta":     delta,
		}).WithError(err).Error("Failed to reverse points adjustment")
	}
	return result.ErrorOrNil()
}

// CreateReward adds a reward to the actor's family. Only parents create
// rewards.
func (s *Service) CreateReward(ctx context.Context, actor *models.FamilyMember, title, description string, cost int) (*models.Reward, error) {
	if err := requireRole(actor, models.RoleParent, "create rewards"); err != nil {
		return nil, err
	}
	if err := validation.Reward(title, cost); err != nil {
		return nil, err
	}

	reward := &models.Reward{
		FamilyID:  actor.FamilyID,
		Title:     strings.TrimSpace(title),
		Cost:      cost,
		CreatedBy: actor.ID,
	}
	if d := strings.TrimSpace(description); d != "" {
		reward.Description = &d
	}

	created, err := s.Rewards.Create(ctx, reward)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"family_id": actor.FamilyID,
		"reward_id": created.ID,
		"cost":      created.Cost,
	}).Info("Reward created")
	return created, nil
}

// ListRewards returns the family's rewards, cheapest first
func (s *Service) ListRewards(ctx context.Context, familyID string) ([]*models.Reward, error) {
	rewards, err := s.Rewards.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards for family %s: %w", familyID, err)
	}
	return rewards, nil
}

// RedeemReward spends a child's points on a reward. The points are deducted
// first and refunded if the redemption cannot be recorded. It returns the
// child's new balance.
func (s *Service) RedeemReward(ctx context.Context, actor *models.FamilyMember, rewardID string) (*models.RewardRedemption, int, error) {
	if err := requireRole(actor, models.RoleChild, "redeem rewards"); err != nil {
		return nil, 0, err
	}

	reward, err := s.Rewards.GetByID(ctx, rewardID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get reward %s: %w", rewardID, err)
	}
	if reward == nil || reward.FamilyID != actor.FamilyID {
		return nil, 0, fmt.Errorf("%w: reward %s", ErrNotFound, rewardID)
	}

	balance, err := s.Members.AdjustPoints(ctx, actor.ID, -reward.Cost)
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientPoints) {
			return nil, balance, fmt.Errorf("%w: %d points needed, %d available", err, reward.Cost, balance)
		}
		return nil, 0, fmt.Errorf("failed to deduct points: %w", err)
	}

	redemption, err := s.Rewards.CreateRedemption(ctx, &models.RewardRedemption{
		RewardID:   reward.ID,
		RedeemedBy: actor.ID,
	})
	if err != nil {
		err = fmt.Errorf("failed to record redemption of reward %s: %w", reward.ID, err)
		return nil, 0, s.refund(ctx, actor.ID, reward.Cost, err)
	}

	s.logger.WithFields(logrus.Fields{
		"reward_id": reward.ID,
		"member_id": actor.ID,
		"cost":      reward.Cost,
		"balance":   balance,
	}).Info("Reward redeemed")
	return redemption, balance, nil
}

// ApproveRedemption marks a redemption as handed out
func (s *Service) ApproveRedemption(ctx context.Context, actor *models.FamilyMember, redemptionID string) error {
	if err := requireRole(actor, models.RoleParent, "approve rewards"); err != nil {
		return err
	}

	redemption, err := s.Rewards.GetRedemption(ctx, redemptionID)
	if err != nil {
		return fmt.Errorf("failed to get redemption %s: %w", redemptionID, err)
	}
	if redemption == nil {
		return fmt.Errorf("%w: redemption %s", ErrNotFound, redemptionID)
	}
	reward, err := s.Rewards.GetByID(ctx, redemption.RewardID)
	if err != nil {
		return fmt.Errorf("failed to get reward %s: %w", redemption.RewardID, err)
	}
	if reward == nil || reward.FamilyID != actor.FamilyID {
		return fmt.Errorf("%w: redemption %s", ErrNotFound, redemptionID)
	}
	if redemption.IsApproved() {
		return fmt.Errorf("%w: redemption %s is already approved", ErrConflict, redemptionID)
	}

	if err := s.Rewards.MarkApproved(ctx, redemption.ID, actor.ID, s.now()); err != nil {
		return fmt.Errorf("failed to approve redemption %s: %w", redemption.ID, err)
	}
	return nil
}

// Overview summarizes a family for the home screen
type Overview struct {
	Children        []*models.FamilyMember `json:"children"`
	ActiveChores    int                    `json:"activeChores"`
	CompletedChores int                    `json:"completedChores"`
	TotalPoints     int                    `json:"totalPoints"`
}

// Overview counts the family's children, open chores and finished chores
func (s *Service) Overview(ctx context.Context, familyID string) (*Overview, error) {
	members, err := s.Members.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of family %s: %w", familyID, err)
	}
	chores, err := s.Chores.ListByFamily(ctx, familyID, repository.ChoreFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list chores of family %s: %w", familyID, err)
	}

	o := &Overview{Children: []*models.FamilyMember{}}
	for _, m := range members {
		if m.IsChild() {
			o.Children = append(o.Children, m)
			o.TotalPoints += m.Points
		}
	}
	for _, c := range chores {
		if c.IsPending() {
			o.ActiveChores++
		} else {
			o.CompletedChores++
		}
	}
	return o, nil
}

// Leaderboard returns the family's children by points, highest first. Ties
// keep roster order.
func (s *Service) Leaderboard(ctx context.Context, familyID string) ([]*models.FamilyMember, error) {
	members, err := s.Members.ListByFamily(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of family %s: %w", familyID, err)
	}

	children := make([]*models.FamilyMember, 0, len(members))
	for _, m := range members {
		if m.IsChild() {
			children = append(children, m)
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].Points > children[j].Points
	})
	return children, nil
}
