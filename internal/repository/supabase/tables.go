package supabase

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

const (
	tableFamilies          = "families"
	tableFamilyMembers     = "family_members"
	tableChores            = "chores"
	tableChoreCompletions  = "chore_completions"
	tableRewards           = "rewards"
	tableRewardRedemptions = "reward_redemptions"
)

type familyRepository struct {
	c *Client
}

// NewFamilyRepository creates a family repository backed by PostgREST
func NewFamilyRepository(c *Client) repository.FamilyRepository {
	return &familyRepository{c: c}
}

func (r *familyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	var row familyRow
	err := r.c.insertRow(ctx, tableFamilies, familyRow{
		Name:       family.Name,
		FamilyCode: family.Code,
		CreatedBy:  family.OwnerID,
	}, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}
	return row.model(), nil
}

func (r *familyRepository) GetByID(ctx context.Context, id string) (*models.Family, error) {
	f, err := r.getOne(ctx, "id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get family by ID: %w", err)
	}
	return f, nil
}

func (r *familyRepository) GetByCode(ctx context.Context, code string) (*models.Family, error) {
	f, err := r.getOne(ctx, "family_code", code)
	if err != nil {
		return nil, fmt.Errorf("failed to get family by code: %w", err)
	}
	return f, nil
}

func (r *familyRepository) getOne(ctx context.Context, column, value string) (*models.Family, error) {
	var rows []familyRow
	q := url.Values{column: {eq(value)}, "limit": {"1"}}
	if err := r.c.selectRows(ctx, tableFamilies, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *familyRepository) Delete(ctx context.Context, id string) error {
	if err := r.c.deleteRows(ctx, tableFamilies, url.Values{"id": {eq(id)}}); err != nil {
		return fmt.Errorf("failed to delete family: %w", err)
	}
	return nil
}

type memberRepository struct {
	c *Client
}

// NewMemberRepository creates a family member repository backed by PostgREST
func NewMemberRepository(c *Client) repository.MemberRepository {
	return &memberRepository{c: c}
}

func (r *memberRepository) Create(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	var row memberRow
	if err := r.c.insertRow(ctx, tableFamilyMembers, newMemberRow(member), &row); err != nil {
		return nil, fmt.Errorf("failed to create family member: %w", err)
	}
	return row.model(), nil
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*models.FamilyMember, error) {
	m, err := r.first(ctx, url.Values{"id": {eq(id)}})
	if err != nil {
		return nil, fmt.Errorf("failed to get family member: %w", err)
	}
	return m, nil
}

func (r *memberRepository) GetByUserAndRole(ctx context.Context, userID string, role models.Role) (*models.FamilyMember, error) {
	m, err := r.first(ctx, url.Values{
		"user_id": {eq(userID)},
		"role":    {eq(string(role))},
		"order":   {"created_at.asc"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get family member by user: %w", err)
	}
	return m, nil
}

func (r *memberRepository) first(ctx context.Context, q url.Values) (*models.FamilyMember, error) {
	q.Set("limit", "1")
	var rows []memberRow
	if err := r.c.selectRows(ctx, tableFamilyMembers, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *memberRepository) ListByFamily(ctx context.Context, familyID string) ([]*models.FamilyMember, error) {
	var rows []memberRow
	q := url.Values{"family_id": {eq(familyID)}, "order": {"created_at.asc"}}
	if err := r.c.selectRows(ctx, tableFamilyMembers, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}
	members := make([]*models.FamilyMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, row.model())
	}
	return members, nil
}

// AdjustPoints reads the balance and writes the new one. PostgREST has no
// arithmetic updates, so two concurrent adjustments can race.
func (r *memberRepository) AdjustPoints(ctx context.Context, memberID string, delta int) (int, error) {
	m, err := r.first(ctx, url.Values{"id": {eq(memberID)}, "select": {"id,points"}})
	if err != nil {
		return 0, fmt.Errorf("failed to read points: %w", err)
	}
	if m == nil {
		return 0, fmt.Errorf("family member %s not found", memberID)
	}
	if m.Points+delta < 0 {
		return m.Points, repository.ErrInsufficientPoints
	}

	points := m.Points + delta
	n, err := r.c.updateRows(ctx, tableFamilyMembers, url.Values{"id": {eq(memberID)}}, map[string]int{"points": points})
	if err != nil {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("family member %s not found", memberID)
	}
	return points, nil
}

type choreRepository struct {
	c *Client
}

// NewChoreRepository creates a chore repository backed by PostgREST
func NewChoreRepository(c *Client) repository.ChoreRepository {
	return &choreRepository{c: c}
}

func (r *choreRepository) Create(ctx context.Context, chore *models.Chore) (*models.Chore, error) {
	var row choreRow
	if err := r.c.insertRow(ctx, tableChores, newChoreRow(chore), &row); err != nil {
		return nil, fmt.Errorf("failed to create chore: %w", err)
	}
	return row.model(), nil
}

func (r *choreRepository) GetByID(ctx context.Context, id string) (*models.Chore, error) {
	var rows []choreRow
	if err := r.c.selectRows(ctx, tableChores, url.Values{"id": {eq(id)}, "limit": {"1"}}, &rows); err != nil {
		return nil, fmt.Errorf("failed to get chore: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *choreRepository) ListByFamily(ctx context.Context, familyID string, filters repository.ChoreFilters) ([]*models.Chore, error) {
	q := url.Values{"family_id": {eq(familyID)}, "order": {"created_at.desc"}}
	if filters.Status != nil {
		q.Set("status", eq(string(*filters.Status)))
	}
	if filters.AssignedTo != nil {
		q.Set("assigned_to", eq(*filters.AssignedTo))
	}
	if filters.Limit > 0 {
		q.Set("limit", strconv.Itoa(filters.Limit))
	}

	var rows []choreRow
	if err := r.c.selectRows(ctx, tableChores, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query chores: %w", err)
	}
	chores := make([]*models.Chore, 0, len(rows))
	for _, row := range rows {
		chores = append(chores, row.model())
	}
	return chores, nil
}

func (r *choreRepository) UpdateStatus(ctx context.Context, id string, status models.ChoreStatus) error {
	n, err := r.c.updateRows(ctx, tableChores, url.Values{"id": {eq(id)}}, map[string]string{"status": string(status)})
	if err != nil {
		return fmt.Errorf("failed to update chore status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("chore %s not found", id)
	}
	return nil
}

func (r *choreRepository) CreateCompletion(ctx context.Context, completion *models.ChoreCompletion) (*models.ChoreCompletion, error) {
	var row completionRow
	err := r.c.insertRow(ctx, tableChoreCompletions, completionRow{
		ChoreID:     completion.ChoreID,
		CompletedBy: completion.CompletedBy,
		PhotoURL:    completion.PhotoURL,
		Notes:       completion.Notes,
	}, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to create chore completion: %w", err)
	}
	return row.model(), nil
}

func (r *choreRepository) GetCompletion(ctx context.Context, id string) (*models.ChoreCompletion, error) {
	var rows []completionRow
	if err := r.c.selectRows(ctx, tableChoreCompletions, url.Values{"id": {eq(id)}, "limit": {"1"}}, &rows); err != nil {
		return nil, fmt.Errorf("failed to get chore completion: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *choreRepository) PendingCompletion(ctx context.Context, choreID string) (*models.ChoreCompletion, error) {
	q := url.Values{
		"chore_id":    {eq(choreID)},
		"verified_at": {"is.null"},
		"order":       {"created_at.asc"},
		"limit":       {"1"},
	}
	var rows []completionRow
	if err := r.c.selectRows(ctx, tableChoreCompletions, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to get pending completion: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *choreRepository) MarkVerified(ctx context.Context, completionID, verifierID string, at time.Time) error {
	q := url.Values{"id": {eq(completionID)}, "verified_at": {"is.null"}}
	n, err := r.c.updateRows(ctx, tableChoreCompletions, q, map[string]any{
		"verified_by": verifierID,
		"verified_at": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to verify chore completion: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("completion %s not found or already verified", completionID)
	}
	return nil
}

type rewardRepository struct {
	c *Client
}

// NewRewardRepository creates a reward repository backed by PostgREST
func NewRewardRepository(c *Client) repository.RewardRepository {
	return &rewardRepository{c: c}
}

func (r *rewardRepository) Create(ctx context.Context, reward *models.Reward) (*models.Reward, error) {
	var row rewardRow
	err := r.c.insertRow(ctx, tableRewards, rewardRow{
		FamilyID:    reward.FamilyID,
		Title:       reward.Title,
		Description: reward.Description,
		Cost:        reward.Cost,
		CreatedBy:   reward.CreatedBy,
	}, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward: %w", err)
	}
	return row.model(), nil
}

func (r *rewardRepository) GetByID(ctx context.Context, id string) (*models.Reward, error) {
	var rows []rewardRow
	if err := r.c.selectRows(ctx, tableRewards, url.Values{"id": {eq(id)}, "limit": {"1"}}, &rows); err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *rewardRepository) ListByFamily(ctx context.Context, familyID string) ([]*models.Reward, error) {
	var rows []rewardRow
	q := url.Values{"family_id": {eq(familyID)}, "order": {"cost.asc,created_at.asc"}}
	if err := r.c.selectRows(ctx, tableRewards, q, &rows); err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	rewards := make([]*models.Reward, 0, len(rows))
	for _, row := range rows {
		rewards = append(rewards, row.model())
	}
	return rewards, nil
}

func (r *rewardRepository) CreateRedemption(ctx context.Context, redemption *models.RewardRedemption) (*models.RewardRedemption, error) {
	var row redemptionRow
	err := r.c.insertRow(ctx, tableRewardRedemptions, redemptionRow{
		RewardID:   redemption.RewardID,
		RedeemedBy: redemption.RedeemedBy,
	}, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward redemption: %w", err)
	}
	return row.model(), nil
}

func (r *rewardRepository) GetRedemption(ctx context.Context, id string) (*models.RewardRedemption, error) {
	var rows []redemptionRow
	if err := r.c.selectRows(ctx, tableRewardRedemptions, url.Values{"id": {eq(id)}, "limit": {"1"}}, &rows); err != nil {
		return nil, fmt.Errorf("failed to get reward redemption: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].model(), nil
}

func (r *rewardRepository) MarkApproved(ctx context.Context, redemptionID, approverID string, at time.Time) error {
	q := url.Values{"id": {eq(redemptionID)}, "approved_at": {"is.null"}}
	n, err := r.c.updateRows(ctx, tableRewardRedemptions, q, map[string]any{
		"approved_by": approverID,
		"approved_at": at.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to approve reward redemption: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("redemption %s not found or already approved", redemptionID)
	}
	return nil
}
