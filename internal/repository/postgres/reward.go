package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

const rewardColumns = `id, family_id, title, description, cost, created_by, created_at`

type rewardRepository struct {
	db *sql.DB
}

func NewRewardRepository(db *sql.DB) repository.RewardRepository {
	return &rewardRepository{db: db}
}

func (r *rewardRepository) Create(ctx context.Context, reward *models.Reward) (*models.Reward, error) {
	query := `INSERT INTO rewards (` + rewardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	reward.ID = uuid.NewString()
	reward.CreatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query,
		reward.ID, reward.FamilyID, reward.Title, reward.Description,
		reward.Cost, reward.CreatedBy, reward.CreatedAt,
	).Scan(&reward.ID, &reward.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward: %w", err)
	}
	return reward, nil
}

func (r *rewardRepository) GetByID(ctx context.Context, id string) (*models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards WHERE id = $1`
	reward, err := scanReward(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return reward, nil
}

func (r *rewardRepository) ListByFamily(ctx context.Context, familyID string) ([]*models.Reward, error) {
	query := `SELECT ` + rewardColumns + ` FROM rewards
		WHERE family_id = $1
		ORDER BY cost ASC, created_at ASC`
	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []*models.Reward
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, reward)
	}
	return rewards, rows.Err()
}

func (r *rewardRepository) CreateRedemption(ctx context.Context, redemption *models.RewardRedemption) (*models.RewardRedemption, error) {
	query := `INSERT INTO reward_redemptions (id, reward_id, redeemed_by, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	redemption.ID = uuid.NewString()
	redemption.CreatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query,
		redemption.ID, redemption.RewardID, redemption.RedeemedBy, redemption.CreatedAt,
	).Scan(&redemption.ID, &redemption.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create reward redemption: %w", err)
	}
	return redemption, nil
}

func (r *rewardRepository) GetRedemption(ctx context.Context, id string) (*models.RewardRedemption, error) {
	query := `SELECT id, reward_id, redeemed_by, approved_by, approved_at, created_at
		FROM reward_redemptions WHERE id = $1`
	rd := &models.RewardRedemption{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rd.ID, &rd.RewardID, &rd.RedeemedBy, &rd.ApprovedBy, &rd.ApprovedAt, &rd.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reward redemption: %w", err)
	}
	return rd, nil
}

func (r *rewardRepository) MarkApproved(ctx context.Context, redemptionID, approverID string, at time.Time) error {
	query := `UPDATE reward_redemptions SET approved_by = $2, approved_at = $3
		WHERE id = $1 AND approved_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, redemptionID, approverID, at)
	if err != nil {
		return fmt.Errorf("failed to approve reward redemption: %w", err)
	}
	return expectRow(result, fmt.Errorf("redemption %s not found or already approved", redemptionID))
}

func scanReward(s scanner) (*models.Reward, error) {
	reward := &models.Reward{}
	err := s.Scan(
		&reward.ID, &reward.FamilyID, &reward.Title, &reward.Description,
		&reward.Cost, &reward.CreatedBy, &reward.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return reward, nil
}
