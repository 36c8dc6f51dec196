package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/academy-hub/config"
	"go.uber.org/zap"
)

// ProfileChangesChannel is the NOTIFY channel carrying the uid of changed profiles
const ProfileChangesChannel = "profile_changes"

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return Wrap(db, logger), nil
}

// Wrap adapts an already opened pool
func Wrap(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, logger: logger}
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// InitSchema creates the tables, indexes and the profile change trigger.
// Every statement is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS academies (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			slug VARCHAR(100) NOT NULL UNIQUE,
			owner_uid VARCHAR(128) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS profiles (
			uid VARCHAR(128) PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			display_name VARCHAR(255) NOT NULL DEFAULT '',
			role VARCHAR(32) NOT NULL CHECK (role IN ('super-admin', 'owner', 'coach')),
			academy_id UUID REFERENCES academies(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS credentials (
			uid VARCHAR(128) PRIMARY KEY REFERENCES profiles(uid) ON DELETE CASCADE,
			password_hash VARCHAR(255) NOT NULL,
			hash_version VARCHAR(32) NOT NULL,
			tokens_valid_after TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS audit_logs (
			id UUID PRIMARY KEY,
			academy_id UUID,
			actor_uid VARCHAR(128),
			action VARCHAR(100) NOT NULL,
			target_uid VARCHAR(128),
			details JSONB,
			ip_address VARCHAR(45),
			user_agent TEXT,
			request_id VARCHAR(255),
			timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS sign_in_attempts (
			scope_key VARCHAR(320) NOT NULL,
			attempted_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_sign_in_attempts_scope ON sign_in_attempts(scope_key, attempted_at);
		CREATE INDEX IF NOT EXISTS idx_profiles_academy_id ON profiles(academy_id);
		CREATE INDEX IF NOT EXISTS idx_academies_owner_uid ON academies(owner_uid);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_academy_id ON audit_logs(academy_id);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_actor_uid ON audit_logs(actor_uid);
		CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp);

		CREATE OR REPLACE FUNCTION notify_profile_change() RETURNS trigger AS $$
		BEGIN
			IF TG_OP = 'DELETE' THEN
				PERFORM pg_notify('profile_changes', OLD.uid);
				RETURN OLD;
			END IF;
			PERFORM pg_notify('profile_changes', NEW.uid);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql;

		DROP TRIGGER IF EXISTS profiles_notify ON profiles;
		CREATE TRIGGER profiles_notify
			AFTER INSERT OR UPDATE OR DELETE ON profiles
			FOR EACH ROW EXECUTE FUNCTION notify_profile_change();
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
