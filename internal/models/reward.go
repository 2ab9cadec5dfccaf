package models

import "time"

// Reward is something children can redeem with their points
type Reward struct {
	ID          string    `json:"id" db:"id"`
	FamilyID    string    `json:"familyId" db:"family_id"`
	Title       string    `json:"title" db:"title"`
	Description *string   `json:"description,omitempty" db:"description"`
	Cost        int       `json:"cost" db:"cost"`
	CreatedBy   string    `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// RewardRedemption records a child spending points on a reward
type RewardRedemption struct {
	ID         string     `json:"id" db:"id"`
	RewardID   string     `json:"rewardId" db:"reward_id"`
	RedeemedBy string     `json:"redeemedBy" db:"redeemed_by"`
	ApprovedBy *string    `json:"approvedBy,omitempty" db:"approved_by"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty" db:"approved_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// IsApproved returns true once a parent has approved the redemption
func (r *RewardRedemption) IsApproved() bool {
	return r.ApprovedAt != nil
}
