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

type familyRepository struct {
	db *sql.DB
}

// NewFamilyRepository creates a new family repository
func NewFamilyRepository(db *sql.DB) repository.FamilyRepository {
	return &familyRepository{db: db}
}

func (r *familyRepository) Create(ctx context.Context, family *models.Family) (*models.Family, error) {
	query := `
		INSERT INTO families (id, name, family_code, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	family.ID = uuid.NewString()
	family.CreatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, query,
		family.ID,
		family.Name,
		family.Code,
		family.OwnerID,
		family.CreatedAt,
	).Scan(&family.ID, &family.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}

	return family, nil
}

func (r *familyRepository) GetByID(ctx context.Context, id string) (*models.Family, error) {
	query := `
		SELECT id, name, family_code, created_by, created_at
		FROM families
		WHERE id = $1`

	family, err := scanFamily(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get family by ID: %w", err)
	}
	return family, nil
}

func (r *familyRepository) GetByCode(ctx context.Context, code string) (*models.Family, error) {
	query := `
		SELECT id, name, family_code, created_by, created_at
		FROM families
		WHERE family_code = $1`

	family, err := scanFamily(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("failed to get family by code: %w", err)
	}
	return family, nil
}

func (r *familyRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM families WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete family: %w", err)
	}
	return nil
}

// scanFamily returns nil, nil when the row does not exist
func scanFamily(row *sql.Row) (*models.Family, error) {
	family := &models.Family{}
	err := row.Scan(
		&family.ID,
		&family.Name,
		&family.Code,
		&family.OwnerID,
		&family.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return family, nil
}
