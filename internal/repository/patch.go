package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

type PatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *PatchRepository {
	return &PatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// GetActive returns the currently tracked game version, or "" when no patch
// has been activated yet.
func (r *PatchRepository) GetActive(ctx context.Context) (string, error) {
	var version string
	err := r.db.QueryRowContext(ctx, `SELECT version FROM patches WHERE is_active = 1 LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active patch: %w", err)
	}
	return version, nil
}

// SetActive marks version as the active patch, deactivating any previous one.
func (r *PatchRepository) SetActive(ctx context.Context, version string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE patches SET is_active = 0 WHERE version != ?`, version); err != nil {
		return fmt.Errorf("failed to deactivate patches: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO patches (version, is_active) VALUES (?, 1)
		ON CONFLICT(version) DO UPDATE SET is_active = 1`, version); err != nil {
		return fmt.Errorf("failed to activate patch %s: %w", version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patch rotation: %w", err)
	}

	r.logger.Info().Str("patch", version).Msg("active patch rotated")
	return nil
}
