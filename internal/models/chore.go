package models

import "time"

// ChoreStatus represents the lifecycle state of a chore
type ChoreStatus string

const (
	ChoreStatusPending   ChoreStatus = "pending"
	ChoreStatusCompleted ChoreStatus = "completed"
	ChoreStatusVerified  ChoreStatus = "verified"
)

// Chore is a task a parent sets for the family's children
type Chore struct {
	ID          string      `json:"id" db:"id"`
	FamilyID    string      `json:"familyId" db:"family_id"`
	Title       string      `json:"title" db:"title"`
	Description *string     `json:"description,omitempty" db:"description"`
	Points      int         `json:"points" db:"points"`
	AssignedTo  *string     `json:"assignedTo,omitempty" db:"assigned_to"`
	CreatedBy   string      `json:"createdBy" db:"created_by"`
	DueDate     *time.Time  `json:"dueDate,omitempty" db:"due_date"`
	Status      ChoreStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
}

// IsPending returns true if the chore has not been completed yet
func (c *Chore) IsPending() bool {
	return c.Status == ChoreStatusPending
}

// IsOverdue returns true if the chore is still pending past its due date
func (c *Chore) IsOverdue() bool {
	if c.DueDate == nil || !c.IsPending() {
		return false
	}
	return time.Now().After(*c.DueDate)
}

// AssignableTo reports whether the member may complete this chore
func (c *Chore) AssignableTo(memberID string) bool {
	return c.AssignedTo == nil || *c.AssignedTo == memberID
}

// ChoreCompletion records a child marking a chore as done
type ChoreCompletion struct {
	ID          string     `json:"id" db:"id"`
	ChoreID     string     `json:"choreId" db:"chore_id"`
	CompletedBy string     `json:"completedBy" db:"completed_by"`
	PhotoURL    *string    `json:"photoUrl,omitempty" db:"photo_url"`
	Notes       *string    `json:"notes,omitempty" db:"notes"`
	VerifiedBy  *string    `json:"verifiedBy,omitempty" db:"verified_by"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty" db:"verified_at"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
}

// IsVerified returns true once a parent has verified the completion
func (c *ChoreCompletion) IsVerified() bool {
	return c.VerifiedAt != nil
}
