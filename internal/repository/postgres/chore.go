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

const choreColumns = `id, family_id, title, description, points, assigned_to, created_by, due_date, status, created_at`

const completionColumns = `id, chore_id, completed_by, photo_url, notes, verified_by, verified_at, created_at`

type choreRepository struct {
	db *sql.DB
}

func NewChoreRepository(db *sql.DB) repository.ChoreRepository {
	return &choreRepository{db: db}
}

func (r *choreRepository) Create(ctx context.Context, chore *models.Chore) (*models.Chore, error) {
	query := `INSERT INTO chores (` + choreColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	chore.ID = uuid.NewString()
	chore.CreatedAt = time.Now()
	if chore.Status == "" {
		chore.Status = models.ChoreStatusPending
	}
	err := r.db.QueryRowContext(ctx, query,
		chore.ID, chore.FamilyID, chore.Title, chore.Description, chore.Points,
		chore.AssignedTo, chore.CreatedBy, chore.DueDate, chore.Status, chore.CreatedAt,
	).Scan(&chore.ID, &chore.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chore: %w", err)
	}
	return chore, nil
}

func (r *choreRepository) GetByID(ctx context.Context, id string) (*models.Chore, error) {
	query := `SELECT ` + choreColumns + ` FROM chores WHERE id = $1`
	chore, err := scanChore(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chore: %w", err)
	}
	return chore, nil
}

func (r *choreRepository) ListByFamily(ctx context.Context, familyID string, filters repository.ChoreFilters) ([]*models.Chore, error) {
	query := `SELECT ` + choreColumns + ` FROM chores WHERE family_id = $1`
	args := []interface{}{familyID}
	argIdx := 2

	if filters.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filters.Status)
		argIdx++
	}
	if filters.AssignedTo != nil {
		query += fmt.Sprintf(" AND assigned_to = $%d", argIdx)
		args = append(args, *filters.AssignedTo)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chores: %w", err)
	}
	defer rows.Close()

	var chores []*models.Chore
	for rows.Next() {
		chore, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chore: %w", err)
		}
		chores = append(chores, chore)
	}
	return chores, rows.Err()
}

func (r *choreRepository) UpdateStatus(ctx context.Context, id string, status models.ChoreStatus) error {
	result, err := r.db.ExecContext(ctx, `UPDATE chores SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update chore status: %w", err)
	}
	return expectRow(result, fmt.Errorf("chore %s not found", id))
}

func (r *choreRepository) CreateCompletion(ctx context.Context, completion *models.ChoreCompletion) (*models.ChoreCompletion, error) {
	query := `INSERT INTO chore_completions (id, chore_id, completed_by, photo_url, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	completion.ID = uuid.NewString()
	completion.CreatedAt = time.Now()
	err := r.db.QueryRowContext(ctx, query,
		completion.ID, completion.ChoreID, completion.CompletedBy,
		completion.PhotoURL, completion.Notes, completion.CreatedAt,
	).Scan(&completion.ID, &completion.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create chore completion: %w", err)
	}
	return completion, nil
}

func (r *choreRepository) GetCompletion(ctx context.Context, id string) (*models.ChoreCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM chore_completions WHERE id = $1`
	c := &models.ChoreCompletion{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.ChoreID, &c.CompletedBy, &c.PhotoURL, &c.Notes,
		&c.VerifiedBy, &c.VerifiedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get chore completion: %w", err)
	}
	return c, nil
}

func (r *choreRepository) PendingCompletion(ctx context.Context, choreID string) (*models.ChoreCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM chore_completions
		WHERE chore_id = $1 AND verified_at IS NULL
		ORDER BY created_at ASC LIMIT 1`
	c := &models.ChoreCompletion{}
	err := r.db.QueryRowContext(ctx, query, choreID).Scan(
		&c.ID, &c.ChoreID, &c.CompletedBy, &c.PhotoURL, &c.Notes,
		&c.VerifiedBy, &c.VerifiedAt, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pending completion: %w", err)
	}
	return c, nil
}

func (r *choreRepository) MarkVerified(ctx context.Context, completionID, verifierID string, at time.Time) error {
	query := `UPDATE chore_completions SET verified_by = $2, verified_at = $3
		WHERE id = $1 AND verified_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, completionID, verifierID, at)
	if err != nil {
		return fmt.Errorf("failed to verify chore completion: %w", err)
	}
	return expectRow(result, fmt.Errorf("completion %s not found or already verified", completionID))
}

func scanChore(s scanner) (*models.Chore, error) {
	chore := &models.Chore{}
	err := s.Scan(
		&chore.ID, &chore.FamilyID, &chore.Title, &chore.Description, &chore.Points,
		&chore.AssignedTo, &chore.CreatedBy, &chore.DueDate, &chore.Status, &chore.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return chore, nil
}
