package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"rift-analytics/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type RuneLoadoutRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRuneLoadoutRepository(sqlDB *sql.DB, logger zerolog.Logger) *RuneLoadoutRepository {
	return &RuneLoadoutRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// FindOrCreate returns the canonical row for the loadout's 11-field identity
// tuple, inserting one if none exists. This is a find-or-create, not an
// upsert: concurrent callers may race to insert the same combination and the
// store tolerates the resulting duplicate, but two different combinations are
// never merged. Variable perk values are stored on insert and ignored during
// the lookup.
func (r *RuneLoadoutRepository) FindOrCreate(ctx context.Context, loadout *domain.RuneLoadout) (*domain.RuneLoadout, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, created_at FROM rune_loadouts
		WHERE primary_style = ? AND sub_style = ?
		  AND perk0 = ? AND perk1 = ? AND perk2 = ? AND perk3 = ? AND perk4 = ? AND perk5 = ?
		  AND stat_defense = ? AND stat_flex = ? AND stat_offense = ?
		LIMIT 1`,
		loadout.PrimaryStyle, loadout.SubStyle,
		loadout.Perk0, loadout.Perk1, loadout.Perk2, loadout.Perk3, loadout.Perk4, loadout.Perk5,
		loadout.StatDefense, loadout.StatFlex, loadout.StatOffense)

	var existing domain.RuneLoadout
	err := row.Scan(&existing.ID, &existing.CreatedAt)
	if err == nil {
		found := *loadout
		found.ID = existing.ID
		found.CreatedAt = existing.CreatedAt
		return &found, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up rune loadout: %w", err)
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate nanoid: %w", err)
	}

	vars, err := json.Marshal(loadout.PerkVars)
	if err != nil {
		return nil, fmt.Errorf("failed to encode perk vars: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rune_loadouts (id, primary_style, sub_style,
			perk0, perk1, perk2, perk3, perk4, perk5,
			stat_defense, stat_flex, stat_offense, perk_vars, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, loadout.PrimaryStyle, loadout.SubStyle,
		loadout.Perk0, loadout.Perk1, loadout.Perk2, loadout.Perk3, loadout.Perk4, loadout.Perk5,
		loadout.StatDefense, loadout.StatFlex, loadout.StatOffense, string(vars), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert rune loadout: %w", err)
	}

	r.logger.Debug().
		Str("id", id).
		Int("primary_style", loadout.PrimaryStyle).
		Int("sub_style", loadout.SubStyle).
		Msg("new rune loadout canonicalized")

	created := *loadout
	created.ID = id
	created.CreatedAt = now
	return &created, nil
}

// GetByID loads a canonical loadout row. Returns nil when no row exists.
func (r *RuneLoadoutRepository) GetByID(ctx context.Context, id string) (*domain.RuneLoadout, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, primary_style, sub_style,
		       perk0, perk1, perk2, perk3, perk4, perk5,
		       stat_defense, stat_flex, stat_offense, perk_vars, created_at
		FROM rune_loadouts WHERE id = ?`, id)

	var loadout domain.RuneLoadout
	var vars string
	err := row.Scan(&loadout.ID, &loadout.PrimaryStyle, &loadout.SubStyle,
		&loadout.Perk0, &loadout.Perk1, &loadout.Perk2, &loadout.Perk3, &loadout.Perk4, &loadout.Perk5,
		&loadout.StatDefense, &loadout.StatFlex, &loadout.StatOffense, &vars, &loadout.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rune loadout %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(vars), &loadout.PerkVars); err != nil {
		return nil, fmt.Errorf("failed to decode perk vars for loadout %s: %w", id, err)
	}
	return &loadout, nil
}
