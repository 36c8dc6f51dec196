package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"go.uber.org/zap"
)

// CredentialRepository implements repositories.CredentialRepository
type CredentialRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB, logger *zap.Logger) repositories.CredentialRepository {
	return &CredentialRepository{db: db, logger: logger}
}

// Get retrieves the credential for uid
func (r *CredentialRepository) Get(ctx context.Context, uid string) (*models.Credential, error) {
	query := `
		SELECT uid, password_hash, hash_version, tokens_valid_after, updated_at
		FROM credentials
		WHERE uid = $1
	`

	cred := &models.Credential{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, uid).Scan(
		&cred.UID,
		&cred.PasswordHash,
		&cred.HashVersion,
		&cred.TokensValidAfter,
		&cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("credential %s: %w", uid, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return cred, nil
}

// Upsert inserts or replaces the credential for cred.UID
func (r *CredentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (uid, password_hash, hash_version, tokens_valid_after, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uid) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
		    hash_version = EXCLUDED.hash_version,
		    tokens_valid_after = EXCLUDED.tokens_valid_after,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		cred.UID,
		cred.PasswordHash,
		cred.HashVersion,
		cred.TokensValidAfter,
		cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	r.logger.Debug("credential stored", zap.String("uid", cred.UID))
	return nil
}

// TokensValidAfter returns the revocation marker for uid
func (r *CredentialRepository) TokensValidAfter(ctx context.Context, uid string) (time.Time, error) {
	query := `SELECT tokens_valid_after FROM credentials WHERE uid = $1`

	var validAfter time.Time
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, uid).Scan(&validAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to get revocation marker: %w", err)
	}
	return validAfter, nil
}

// RevokeTokens moves the revocation marker for uid forward to at
func (r *CredentialRepository) RevokeTokens(ctx context.Context, uid string, at time.Time) error {
	query := `
		UPDATE credentials
		SET tokens_valid_after = GREATEST(tokens_valid_after, $2),
		    updated_at = $2
		WHERE uid = $1
	`

	result, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, uid, at)
	if err != nil {
		return fmt.Errorf("failed to revoke tokens: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("credential %s: %w", uid, repositories.ErrNotFound)
	}

	r.logger.Info("sessions revoked", zap.String("uid", uid), zap.Time("valid_after", at))
	return nil
}
