// Package ratelimit throttles password sign-in attempts with a sliding
// window kept in PostgreSQL, so limits hold across replicas.
package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config bounds failed attempts per scope key
type Config struct {
	MaxAttempts     int
	Window          time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns five failures per fifteen minutes
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		Window:          15 * time.Minute,
		CleanupInterval: time.Hour,
	}
}

// Result is the outcome of a Check
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Scope      string // the key that exhausted its budget
}

// Limiter counts failed sign-in attempts per scope key
type Limiter struct {
	db     *sql.DB
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewLimiter creates a new Limiter. A non-positive MaxAttempts disables it.
func NewLimiter(db *sql.DB, cfg Config, logger *zap.Logger) *Limiter {
	return &Limiter{
		db:     db,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// EmailKey scopes attempts to one account
func EmailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

// IPKey scopes attempts to one client address
func IPKey(ip string) string {
	return "ip:" + ip
}

// Check reports whether every key still has budget left in the window.
// The first exhausted key decides the result.
func (l *Limiter) Check(ctx context.Context, keys ...string) (*Result, error) {
	if l.cfg.MaxAttempts <= 0 {
		return &Result{Allowed: true}, nil
	}

	now := l.now()
	windowStart := now.Add(-l.cfg.Window)
	result := &Result{Allowed: true, Remaining: l.cfg.MaxAttempts}

	for _, key := range keys {
		if key == "" {
			continue
		}

		var (
			count  int
			oldest sql.NullTime
		)
		err := l.db.QueryRowContext(ctx, `
			SELECT COUNT(*), MIN(attempted_at)
			FROM sign_in_attempts
			WHERE scope_key = $1 AND attempted_at >= $2
		`, key, windowStart).Scan(&count, &oldest)
		if err != nil {
			return nil, fmt.Errorf("failed to count sign-in attempts: %w", err)
		}

		if count >= l.cfg.MaxAttempts {
			retryAfter := l.cfg.Window
			if oldest.Valid {
				retryAfter = oldest.Time.Add(l.cfg.Window).Sub(now)
			}
			return &Result{Scope: key, RetryAfter: retryAfter}, nil
		}
		if remaining := l.cfg.MaxAttempts - count; remaining < result.Remaining {
			result.Remaining = remaining
		}
	}

	return result, nil
}

// RecordFailure adds one failed attempt to every key
func (l *Limiter) RecordFailure(ctx context.Context, keys ...string) error {
	if l.cfg.MaxAttempts <= 0 {
		return nil
	}

	now := l.now()
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, err := l.db.ExecContext(ctx,
			`INSERT INTO sign_in_attempts (scope_key, attempted_at) VALUES ($1, $2)`,
			key, now); err != nil {
			return fmt.Errorf("failed to record sign-in attempt: %w", err)
		}
	}
	return nil
}

// Reset forgets the attempts recorded for key, typically after a successful sign-in
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM sign_in_attempts WHERE scope_key = $1`, key); err != nil {
		return fmt.Errorf("failed to reset sign-in attempts: %w", err)
	}
	return nil
}

// Cleanup deletes attempts that fell out of the window
func (l *Limiter) Cleanup(ctx context.Context) (int64, error) {
	cutoff := l.now().Add(-l.cfg.Window)

	result, err := l.db.ExecContext(ctx, `DELETE FROM sign_in_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sign-in attempts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		l.logger.Info("cleaned up sign-in attempts", zap.Int64("rows_deleted", rows), zap.Time("cutoff", cutoff))
	}
	return rows, nil
}

// RunCleanup deletes expired attempts every CleanupInterval until ctx is done
func (l *Limiter) RunCleanup(ctx context.Context) {
	if l.cfg.MaxAttempts <= 0 || l.cfg.CleanupInterval <= 0 {
		return
	}

	ticker := time.NewTicker(l.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := l.Cleanup(ctx); err != nil && ctx.Err() == nil {
				l.logger.Error("sign-in attempt cleanup failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
