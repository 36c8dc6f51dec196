package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/academy-hub/models"
)

// ErrNotFound is wrapped by repositories when a record does not exist
var ErrNotFound = errors.New("record not found")

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes a function within a transaction.
	// Repositories called with the ctx handed to fn join the transaction.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// ProfileRepository handles user profile data operations
type ProfileRepository interface {
	Create(ctx context.Context, profile *models.Profile) error

	// GetByUID retrieves a profile by subject id. Wraps ErrNotFound when absent.
	GetByUID(ctx context.Context, uid string) (*models.Profile, error)

	GetByEmail(ctx context.Context, email string) (*models.Profile, error)

	ListByAcademy(ctx context.Context, academyID uuid.UUID) ([]*models.Profile, error)

	Update(ctx context.Context, profile *models.Profile) error
}

// AcademyRepository handles tenant data operations
type AcademyRepository interface {
	Create(ctx context.Context, academy *models.Academy) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Academy, error)
	GetBySlug(ctx context.Context, slug string) (*models.Academy, error)
	List(ctx context.Context, limit, offset int) ([]*models.Academy, error)
	Update(ctx context.Context, academy *models.Academy) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CredentialRepository handles password hashes and session revocation markers
type CredentialRepository interface {
	Get(ctx context.Context, uid string) (*models.Credential, error)

	// Upsert inserts or replaces the credential for cred.UID
	Upsert(ctx context.Context, cred *models.Credential) error

	// TokensValidAfter returns the revocation marker, or the zero time when none exists
	TokensValidAfter(ctx context.Context, uid string) (time.Time, error)

	RevokeTokens(ctx context.Context, uid string, at time.Time) error
}

// AuditRepository handles audit log operations
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	GetByID(ctx context.Context, id uuid.UUID) (*models.AuditLog, error)

	// ListByActor retrieves the most recent entries created by a subject
	ListByActor(ctx context.Context, actorUID string, limit int) ([]*models.AuditLog, error)

	// ListByAcademy retrieves entries for a tenant within a time range
	ListByAcademy(ctx context.Context, academyID uuid.UUID, start, end time.Time, limit int) ([]*models.AuditLog, error)
}

// Repositories aggregates all repositories
type Repositories struct {
	Profiles    ProfileRepository
	Academies   AcademyRepository
	Credentials CredentialRepository
	AuditLogs   AuditRepository
}
