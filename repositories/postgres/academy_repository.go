package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"go.uber.org/zap"
)

// AcademyRepository implements repositories.AcademyRepository
type AcademyRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAcademyRepository creates a new academy repository
func NewAcademyRepository(db *DB, logger *zap.Logger) repositories.AcademyRepository {
	return &AcademyRepository{db: db, logger: logger}
}

// Create creates a new academy
func (r *AcademyRepository) Create(ctx context.Context, academy *models.Academy) error {
	query := `
		INSERT INTO academies (id, name, slug, owner_uid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		academy.ID,
		academy.Name,
		academy.Slug,
		academy.OwnerUID,
		academy.CreatedAt,
		academy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create academy: %w", err)
	}

	r.logger.Debug("academy created", zap.String("id", academy.ID.String()), zap.String("slug", academy.Slug))
	return nil
}

// GetByID retrieves an academy by ID
func (r *AcademyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Academy, error) {
	query := `
		SELECT id, name, slug, owner_uid, created_at, updated_at
		FROM academies
		WHERE id = $1
	`
	return r.getOne(ctx, query, id)
}

// GetBySlug retrieves an academy by slug
func (r *AcademyRepository) GetBySlug(ctx context.Context, slug string) (*models.Academy, error) {
	query := `
		SELECT id, name, slug, owner_uid, created_at, updated_at
		FROM academies
		WHERE slug = $1
	`
	return r.getOne(ctx, query, slug)
}

func (r *AcademyRepository) getOne(ctx context.Context, query string, key interface{}) (*models.Academy, error) {
	academy := &models.Academy{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, key).Scan(
		&academy.ID,
		&academy.Name,
		&academy.Slug,
		&academy.OwnerUID,
		&academy.CreatedAt,
		&academy.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("academy %v: %w", key, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get academy: %w", err)
	}
	return academy, nil
}

// List retrieves academies with pagination
func (r *AcademyRepository) List(ctx context.Context, limit, offset int) ([]*models.Academy, error) {
	query := `
		SELECT id, name, slug, owner_uid, created_at, updated_at
		FROM academies
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list academies: %w", err)
	}
	defer rows.Close()

	var academies []*models.Academy
	for rows.Next() {
		academy := &models.Academy{}
		if err := rows.Scan(
			&academy.ID,
			&academy.Name,
			&academy.Slug,
			&academy.OwnerUID,
			&academy.CreatedAt,
			&academy.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan academy: %w", err)
		}
		academies = append(academies, academy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating academy rows: %w", err)
	}

	return academies, nil
}

// Update updates an academy
func (r *AcademyRepository) Update(ctx context.Context, academy *models.Academy) error {
	query := `
		UPDATE academies
		SET name = $2, slug = $3, owner_uid = $4, updated_at = $5
		WHERE id = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		academy.ID,
		academy.Name,
		academy.Slug,
		academy.OwnerUID,
		academy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update academy: %w", err)
	}
	return expectOneRow(result, "academy", academy.ID)
}

// Delete deletes an academy
func (r *AcademyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, `DELETE FROM academies WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete academy: %w", err)
	}
	return expectOneRow(result, "academy", id)
}

func expectOneRow(result sql.Result, kind string, key interface{}) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s %v: %w", kind, key, repositories.ErrNotFound)
	}
	return nil
}
