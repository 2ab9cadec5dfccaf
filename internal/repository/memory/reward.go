package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

type rewardRepository struct {
	b *Backend
}

func (r *rewardRepository) Create(ctx context.Context, reward *models.Reward) (*models.Reward, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpRewardCreate); err != nil {
		return nil, err
	}

	rw := *reward
	rw.ID = newID()
	rw.CreatedAt = r.b.now()
	r.b.rewards[rw.ID] = &rw
	r.b.rewardOrder = append(r.b.rewardOrder, rw.ID)
	out := rw
	return &out, nil
}

func (r *rewardRepository) GetByID(ctx context.Context, id string) (*models.Reward, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpRewardGetByID); err != nil {
		return nil, err
	}

	rw, ok := r.b.rewards[id]
	if !ok {
		return nil, nil
	}
	out := *rw
	return &out, nil
}

// ListByFamily returns rewards cheapest first
func (r *rewardRepository) ListByFamily(ctx context.Context, familyID string) ([]*models.Reward, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpRewardList); err != nil {
		return nil, err
	}

	var rewards []*models.Reward
	for _, id := range r.b.rewardOrder {
		rw := r.b.rewards[id]
		if rw.FamilyID != familyID {
			continue
		}
		out := *rw
		rewards = append(rewards, &out)
	}
	sort.SliceStable(rewards, func(i, j int) bool {
		return rewards[i].Cost < rewards[j].Cost
	})
	return rewards, nil
}

func (r *rewardRepository) CreateRedemption(ctx context.Context, redemption *models.RewardRedemption) (*models.RewardRedemption, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpRewardCreateRedemption); err != nil {
		return nil, err
	}

	rd := *redemption
	rd.ID = newID()
	rd.CreatedAt = r.b.now()
	r.b.redemptions[rd.ID] = &rd
	out := rd
	return &out, nil
}

func (r *rewardRepository) GetRedemption(ctx context.Context, id string) (*models.RewardRedemption, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpRewardGetRedemption); err != nil {
		return nil, err
	}

	rd, ok := r.b.redemptions[id]
	if !ok {
		return nil, nil
	}
	out := *rd
	return &out, nil
}

func (r *rewardRepository) MarkApproved(ctx context.Context, redemptionID, approverID string, at time.Time) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpRewardMarkApproved); err != nil {
		return err
	}

	rd, ok := r.b.redemptions[redemptionID]
	if !ok || rd.IsApproved() {
		return fmt.Errorf("redemption %s not found or already approved", redemptionID)
	}
	rd.ApprovedBy = &approverID
	rd.ApprovedAt = &at
	return nil
}

var _ repository.RewardRepository = (*rewardRepository)(nil)
