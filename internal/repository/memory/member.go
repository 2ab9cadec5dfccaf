package memory

import (
	"context"
	"fmt"

	"github.com/Kerhoff/ChoreBoT/internal/models"
	"github.com/Kerhoff/ChoreBoT/internal/repository"
)

type memberRepository struct {
	b *Backend
}

func (r *memberRepository) Create(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpMemberCreate); err != nil {
		return nil, err
	}
	if _, ok := r.b.families[member.FamilyID]; !ok {
		return nil, fmt.Errorf("family %s does not exist", member.FamilyID)
	}

	m := *member
	m.ID = newID()
	m.CreatedAt = r.b.now()
	if m.Level == 0 {
		m.Level = 1
	}
	r.b.members[m.ID] = &m
	r.b.memberOrder = append(r.b.memberOrder, m.ID)
	out := m
	return &out, nil
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*models.FamilyMember, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpMemberGetByID); err != nil {
		return nil, err
	}

	m, ok := r.b.members[id]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}

func (r *memberRepository) GetByUserAndRole(ctx context.Context, userID string, role models.Role) (*models.FamilyMember, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpMemberGetByUser); err != nil {
		return nil, err
	}

	for _, id := range r.b.memberOrder {
		m := r.b.members[id]
		if m.Role == role && m.UserID != nil && *m.UserID == userID {
			out := *m
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memberRepository) ListByFamily(ctx context.Context, familyID string) ([]*models.FamilyMember, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpMemberList); err != nil {
		return nil, err
	}

	var members []*models.FamilyMember
	for _, id := range r.b.memberOrder {
		m := r.b.members[id]
		if m.FamilyID == familyID {
			out := *m
			members = append(members, &out)
		}
	}
	return members, nil
}

func (r *memberRepository) AdjustPoints(ctx context.Context, memberID string, delta int) (int, error) {
	r.b.mu.Lock()
	defer r.b.mu.Unlock()
	if err := r.b.enter(OpMemberAdjustPoints); err != nil {
		return 0, err
	}

	m, ok := r.b.members[memberID]
	if !ok {
		return 0, fmt.Errorf("member %s does not exist", memberID)
	}
	if m.Points+delta < 0 {
		return m.Points, repository.ErrInsufficientPoints
	}
	m.Points += delta
	return m.Points, nil
}

// RemoveMember deletes a member row directly, as another device would
func (b *Backend) RemoveMember(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, id)
	for i, mid := range b.memberOrder {
		if mid == id {
			b.memberOrder = append(b.memberOrder[:i], b.memberOrder[i+1:]...)
			break
		}
	}
}

// RemoveFamily deletes a family and its members directly
func (b *Backend) RemoveFamily(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeFamily(id)
}

var _ repository.MemberRepository = (*memberRepository)(nil)
