package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

type choreRepository struct {
	b *Backend
}

func (r *choreRepository) Create(ctx context.Context, chore *models.Chore) (*models.Chore, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreCreate); err != nil {
		return nil, err
	}

	c := *chore
	c.ID = newID()
	c.CreatedAt = r.b.now()
	if c.Status == "" {
		c.Status = models.ChoreStatusPending
	}
	r.b.chores[c.ID] = &c
	r.b.choreOrder = append(r.b.choreOrder, c.ID)
	out := c
	return &out, nil
}

func (r *choreRepository) GetByID(ctx context.Context, id string) (*models.Chore, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreGetByID); err != nil {
		return nil, err
	}

	c, ok := r.b.chores[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

// ListByFamily returns chores newest first
func (r *choreRepository) ListByFamily(ctx context.Context, familyID string, filters repository.ChoreFilters) ([]*models.Chore, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreList); err != nil {
		return nil, err
	}

	var chores []*models.Chore
	for i := len(r.b.choreOrder) - 1; i >= 0; i-- {
		c := r.b.chores[r.b.choreOrder[i]]
		if c.FamilyID != familyID || !filters.Match(c) {
			continue
		}
		out := *c
		chores = append(chores, &out)
		if filters.Limit > 0 && len(chores) == filters.Limit {
			break
		}
	}
	return chores, nil
}

func (r *choreRepository) UpdateStatus(ctx context.Context, id string, status models.ChoreStatus) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreUpdateStatus); err != nil {
		return err
	}

	c, ok := r.b.chores[id]
	if !ok {
		return fmt.Errorf("chore %s does not exist", id)
	}
	c.Status = status
	return nil
}

func (r *choreRepository) CreateCompletion(ctx context.Context, completion *models.ChoreCompletion) (*models.ChoreCompletion, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreCreateCompletion); err != nil {
		return nil, err
	}

	c := *completion
	c.ID = newID()
	c.CreatedAt = r.b.now()
	r.b.completions[c.ID] = &c
	out := c
	return &out, nil
}

func (r *choreRepository) GetCompletion(ctx context.Context, id string) (*models.ChoreCompletion, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreGetCompletion); err != nil {
		return nil, err
	}

	c, ok := r.b.completions[id]
	if !ok {
		return nil, nil
	}
	out := *c
	return &out, nil
}

func (r *choreRepository) PendingCompletion(ctx context.Context, choreID string) (*models.ChoreCompletion, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChorePendingCompletion); err != nil {
		return nil, err
	}

	var oldest *models.ChoreCompletion
	for _, c := range r.b.completions {
		if c.ChoreID != choreID || c.IsVerified() {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, nil
	}
	out := *oldest
	return &out, nil
}

func (r *choreRepository) MarkVerified(ctx context.Context, completionID, verifierID string, at time.Time) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpChoreMarkVerified); err != nil {
		return err
	}

	c, ok := r.b.completions[completionID]
	if !ok || c.IsVerified() {
		return fmt.Errorf("completion %s not found or already verified", completionID)
	}
	c.VerifiedBy = &verifierID
	c.VerifiedAt = &at
	return nil
}

var _ repository.ChoreRepository = (*choreRepository)(nil)
