package supabase

import (
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/models"
)

// Rows mirror the PostgREST JSON of each table. Ids and timestamps are
// omitted on insert so the database defaults apply.

type familyRow struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	FamilyCode string     `json:"family_code"`
	CreatedBy  string     `json:"created_by"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

func (r familyRow) model() *models.Family {
	return &models.Family{
		ID:        r.ID,
		Name:      r.Name,
		Code:      r.FamilyCode,
		OwnerID:   r.CreatedBy,
		CreatedAt: deref(r.CreatedAt),
	}
}

type memberRow struct {
	ID          string      `json:"id,omitempty"`
	FamilyID    string      `json:"family_id"`
	UserID      *string     `json:"user_id"`
	Role        models.Role `json:"role"`
	DisplayName string      `json:"display_name"`
	Points      int         `json:"points"`
	Level       int         `json:"level"`
	Age         *int        `json:"age"`
	AvatarURL   *string     `json:"avatar_url"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
}

func newMemberRow(m *models.FamilyMember) memberRow {
	level := m.Level
	if level == 0 {
		level = 1
	}
	return memberRow{
		FamilyID:    m.FamilyID,
		UserID:      m.UserID,
		Role:        m.Role,
		DisplayName: m.Name,
		Points:      m.Points,
		Level:       level,
		Age:         m.Age,
		AvatarURL:   m.Avatar,
	}
}

func (r memberRow) model() *models.FamilyMember {
	return &models.FamilyMember{
		ID:        r.ID,
		FamilyID:  r.FamilyID,
		UserID:    r.UserID,
		Name:      r.DisplayName,
		Age:       r.Age,
		Avatar:    r.AvatarURL,
		Role:      r.Role,
		Points:    r.Points,
		Level:     r.Level,
		CreatedAt: deref(r.CreatedAt),
	}
}

type choreRow struct {
	ID          string             `json:"id,omitempty"`
	FamilyID    string             `json:"family_id"`
	Title       string             `json:"title"`
	Description *string            `json:"description"`
	Points      int                `json:"points"`
	AssignedTo  *string            `json:"assigned_to"`
	CreatedBy   string             `json:"created_by"`
	DueDate     *time.Time         `json:"due_date"`
	Status      models.ChoreStatus `json:"status"`
	CreatedAt   *time.Time         `json:"created_at,omitempty"`
}

func newChoreRow(c *models.Chore) choreRow {
	status := c.Status
	if status == "" {
		status = models.ChoreStatusPending
	}
	return choreRow{
		FamilyID:    c.FamilyID,
		Title:       c.Title,
		Description: c.Description,
		Points:      c.Points,
		AssignedTo:  c.AssignedTo,
		CreatedBy:   c.CreatedBy,
		DueDate:     c.DueDate,
		Status:      status,
	}
}

func (r choreRow) model() *models.Chore {
	return &models.Chore{
		ID:          r.ID,
		FamilyID:    r.FamilyID,
		Title:       r.Title,
		Description: r.Description,
		Points:      r.Points,
		AssignedTo:  r.AssignedTo,
		CreatedBy:   r.CreatedBy,
		DueDate:     r.DueDate,
		Status:      r.Status,
		CreatedAt:   deref(r.CreatedAt),
	}
}

type completionRow struct {
	ID          string     `json:"id,omitempty"`
	ChoreID     string     `json:"chore_id"`
	CompletedBy string     `json:"completed_by"`
	PhotoURL    *string    `json:"photo_url"`
	Notes       *string    `json:"notes"`
	VerifiedBy  *string    `json:"verified_by"`
	VerifiedAt  *time.Time `json:"verified_at"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func (r completionRow) model() *models.ChoreCompletion {
	return &models.ChoreCompletion{
		ID:          r.ID,
		ChoreID:     r.ChoreID,
		CompletedBy: r.CompletedBy,
		PhotoURL:    r.PhotoURL,
		Notes:       r.Notes,
		VerifiedBy:  r.VerifiedBy,
		VerifiedAt:  r.VerifiedAt,
		CreatedAt:   deref(r.CreatedAt),
	}
}

type rewardRow struct {
	ID          string     `json:"id,omitempty"`
	FamilyID    string     `json:"family_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Cost        int        `json:"cost"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

func (r rewardRow) model() *models.Reward {
	return &models.Reward{
		ID:          r.ID,
		FamilyID:    r.FamilyID,
		Title:       r.Title,
		Description: r.Description,
		Cost:        r.Cost,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   deref(r.CreatedAt),
	}
}

type redemptionRow struct {
	ID         string     `json:"id,omitempty"`
	RewardID   string     `json:"reward_id"`
	RedeemedBy string     `json:"redeemed_by"`
	ApprovedBy *string    `json:"approved_by"`
	ApprovedAt *time.Time `json:"approved_at"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

func (r redemptionRow) model() *models.RewardRedemption {
	return &models.RewardRedemption{
		ID:         r.ID,
		RewardID:   r.RewardID,
		RedeemedBy: r.RedeemedBy,
		ApprovedBy: r.ApprovedBy,
		ApprovedAt: r.ApprovedAt,
		CreatedAt:  deref(r.CreatedAt),
	}
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
