package memory

import (
	"context"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

type familyRepository struct {
	b *Backend
}

func (r *familyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpFamilyCreate); err != nil {
		return nil, err
	}

	f := *family
	f.ID = newID()
	f.CreatedAt = r.b.now()
	r.b.families[f.ID] = &f
	out := f
	return &out, nil
}

func (r *familyRepository) GetByID(ctx context.Context, id string) (*models.Family, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpFamilyGetByID); err != nil {
		return nil, err
	}

	f, ok := r.b.families[id]
	if !ok {
		return nil, nil
	}
	out := *f
	return &out, nil
}

func (r *familyRepository) GetByCode(ctx context.Context, code string) (*models.Family, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpFamilyGetByCode); err != nil {
		return nil, err
	}

	for _, f := range r.b.families {
		if f.Code == code {
			out := *f
			return &out, nil
		}
	}
	return nil, nil
}

func (r *familyRepository) Delete(ctx context.Context, id string) error {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpFamilyDelete); err != nil {
		return err
	}

	r.b.removeFamily(id)
	return nil
}

// removeFamily deletes a family and its roster. Callers must hold b.mu.
func (b *Backend) removeFamily(id string) {
	delete(b.families, id)
	kept := b.memberOrder[:0]
	for _, mid := range b.memberOrder {
		if b.members[mid].FamilyID == id {
			delete(b.members, mid)
			continue
		}
		kept = append(kept, mid)
	}
	b.memberOrder = kept
}

// FamilyCount returns the number of stored families
func (b *Backend) FamilyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.families)
}

// SeedFamily inserts a family with a fixed code, bypassing fault injection
func (b *Backend) SeedFamily(name, code string) *models.Family {
	b.mu.Lock()
	defer b.mu.Unlock()
	f := &models.Family{ID: newID(), Name: name, Code: code, CreatedAt: b.now()}
	b.families[f.ID] = f
	out := *f
	return &out
}

var _ repository.FamilyRepository = (*familyRepository)(nil)
