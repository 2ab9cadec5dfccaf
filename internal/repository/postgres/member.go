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

const memberColumns = `id, family_id, user_id, display_name, age, avatar_url, role, points, level, created_at`

type memberRepository struct {
	db *sql.DB
}

// NewMemberRepository creates a new family member repository
func NewMemberRepository(db *sql.DB) repository.MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) Create(ctx context.Context, member *models.FamilyMember) (*models.FamilyMember, error) {
	query := `
		INSERT INTO family_members (id, family_id, user_id, display_name, age, avatar_url, role, points, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	member.ID = uuid.NewString()
	member.CreatedAt = time.Now()
	if member.Level == 0 {
		member.Level = 1
	}

	err := r.db.QueryRowContext(ctx, query,
		member.ID, member.FamilyID, member.UserID, member.Name, member.Age,
		member.Avatar, member.Role, member.Points, member.Level, member.CreatedAt,
	).Scan(&member.ID, &member.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create family member: %w", err)
	}
	return member, nil
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members WHERE id = $1`

	member, err := scanMember(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get family member: %w", err)
	}
	return member, nil
}

func (r *memberRepository) GetByUserAndRole(ctx context.Context, userID string, role models.Role) (*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members
		WHERE user_id = $1 AND role = $2
		ORDER BY created_at ASC
		LIMIT 1`

	member, err := scanMember(r.db.QueryRowContext(ctx, query, userID, role))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get family member by user: %w", err)
	}
	return member, nil
}

func (r *memberRepository) ListByFamily(ctx context.Context, familyID string) ([]*models.FamilyMember, error) {
	query := `SELECT ` + memberColumns + ` FROM family_members
		WHERE family_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query family members: %w", err)
	}
	defer rows.Close()

	var members []*models.FamilyMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan family member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

// AdjustPoints applies delta in a single statement so concurrent awards and
// redemptions cannot push the balance below zero
func (r *memberRepository) AdjustPoints(ctx context.Context, memberID string, delta int) (int, error) {
	query := `
		UPDATE family_members
		SET points = points + $2
		WHERE id = $1 AND points + $2 >= 0
		RETURNING points`

	var points int
	err := r.db.QueryRowContext(ctx, query, memberID, delta).Scan(&points)
	if err == nil {
		return points, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust points: %w", err)
	}

	// distinguish a missing member from an insufficient balance
	err = r.db.QueryRowContext(ctx, `SELECT points FROM family_members WHERE id = $1`, memberID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("family member %s not found", memberID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read points: %w", err)
	}
	return points, repository.ErrInsufficientPoints
}

type scanner interface {
	Scan(dest ...any) error
}

// expectRow returns miss when an update matched no row
func expectRow(result sql.Result, miss error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return miss
	}
	return nil
}

func scanMember(s scanner) (*models.FamilyMember, error) {
	member := &models.FamilyMember{}
	err := s.Scan(
		&member.ID, &member.FamilyID, &member.UserID, &member.Name, &member.Age,
		&member.Avatar, &member.Role, &member.Points, &member.Level, &member.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}
