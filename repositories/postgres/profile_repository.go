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

const profileColumns = `uid, email, display_name, role, academy_id, created_at, updated_at`

// ProfileRepository implements repositories.ProfileRepository
type ProfileRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *DB, logger *zap.Logger) repositories.ProfileRepository {
	return &ProfileRepository{db: db, logger: logger}
}

// Create creates a new profile
func (r *ProfileRepository) Create(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	executor := GetExecutor(ctx, r.db)
	_, err := executor.ExecContext(ctx, query,
		profile.UID,
		profile.Email,
		profile.DisplayName,
		profile.Role,
		profile.AcademyID,
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	r.logger.Debug("profile created", zap.String("uid", profile.UID), zap.String("role", string(profile.Role)))
	return nil
}

// GetByUID retrieves a profile by subject id
func (r *ProfileRepository) GetByUID(ctx context.Context, uid string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE uid = $1`

	profile, err := scanProfile(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, uid))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile %s: %w", uid, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// GetByEmail retrieves a profile by email
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE email = $1`

	profile, err := scanProfile(GetExecutor(ctx, r.db).QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("profile for email %s: %w", email, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// ListByAcademy retrieves all profiles linked to an academy
func (r *ProfileRepository) ListByAcademy(ctx context.Context, academyID uuid.UUID) ([]*models.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE academy_id = $1
		ORDER BY created_at DESC
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, academyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}

	return profiles, nil
}

// Update updates a profile's mutable fields
func (r *ProfileRepository) Update(ctx context.Context, profile *models.Profile) error {
	query := `
		UPDATE profiles
		SET email = $2,
		    display_name = $3,
		    role = $4,
		    academy_id = $5,
		    updated_at = $6
		WHERE uid = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		profile.UID,
		profile.Email,
		profile.DisplayName,
		profile.Role,
		profile.AcademyID,
		profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile %s: %w", profile.UID, repositories.ErrNotFound)
	}

	r.logger.Debug("profile updated", zap.String("uid", profile.UID))
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProfile(row rowScanner) (*models.Profile, error) {
	profile := &models.Profile{}
	var academyID uuid.NullUUID

	err := row.Scan(
		&profile.UID,
		&profile.Email,
		&profile.DisplayName,
		&profile.Role,
		&academyID,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if academyID.Valid {
		profile.AcademyID = &academyID.UUID
	}
	return profile, nil
}
