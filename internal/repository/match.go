package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"rift-analytics/internal/domain"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// InsertResult is the explicit outcome of a persistence attempt; a duplicate
// external match id is a result, not an error.
type InsertResult int

const (
	InsertResultInserted InsertResult = iota
	InsertResultAlreadyExists
)

// matchIDConstraint is the constraint text SQLite reports for a unique
// violation on the external match id. Classification matches on it explicitly
// so that unrelated uniqueness violations (the participant pair, for one) are
// never swallowed. If the schema renames the column this string must follow.
const matchIDConstraint = "matches.match_id"

type MatchRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewMatchRepository(sqlDB *sql.DB, logger zerolog.Logger) *MatchRepository {
	return &MatchRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// nullIfEmpty maps "" onto NULL for nullable foreign key columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsDuplicateMatchID reports whether err is a unique-constraint violation on
// the external match id index specifically.
func IsDuplicateMatchID(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique &&
		strings.Contains(sqliteErr.Error(), matchIDConstraint)
}

// InsertMatch persists a transformed match aggregate exactly once per external
// match id. A previously tracked failure stub for the same id is promoted to
// FETCHED; a concurrent double-fetch losing the insert race observes
// InsertResultAlreadyExists instead of an error.
func (r *MatchRepository) InsertMatch(ctx context.Context, match *domain.Match) (InsertResult, error) {
	now := time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var matchRowID string
	var status domain.FetchStatus
	err = tx.QueryRowContext(ctx, `SELECT id, status FROM matches WHERE match_id = ?`, match.MatchID).
		Scan(&matchRowID, &status)

	switch {
	case err == nil && status == domain.FetchStatusFetched:
		r.logger.Debug().Str("match_id", match.MatchID).Msg("match already ingested")
		return InsertResultAlreadyExists, nil

	case err == nil:
		// Failure stub from an earlier attempt: promote it in place.
		_, err = tx.ExecContext(ctx, `
			UPDATE matches SET status = ?, last_attempt_at = ?, match_date = ?, duration = ?,
				patch = ?, queue_type = ?, updated_at = ?
			WHERE id = ?`,
			domain.FetchStatusFetched, now, match.MatchDate, match.Duration,
			match.Patch, match.QueueType, now, matchRowID)
		if err != nil {
			return 0, fmt.Errorf("failed to promote match %s: %w", match.MatchID, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM match_participants WHERE match_id = ?`, matchRowID); err != nil {
			return 0, fmt.Errorf("failed to clear stale participants for %s: %w", match.MatchID, err)
		}

	case errors.Is(err, sql.ErrNoRows):
		matchRowID, err = gonanoid.New()
		if err != nil {
			return 0, fmt.Errorf("failed to generate nanoid: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO matches (id, match_id, status, last_attempt_at, match_date, duration, patch, queue_type, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			matchRowID, match.MatchID, domain.FetchStatusFetched, now, match.MatchDate,
			match.Duration, match.Patch, match.QueueType, now, now)
		if IsDuplicateMatchID(err) {
			r.logger.Debug().Str("match_id", match.MatchID).Msg("lost insert race, match already ingested")
			return InsertResultAlreadyExists, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to insert match %s: %w", match.MatchID, err)
		}

	default:
		return 0, fmt.Errorf("failed to look up match %s: %w", match.MatchID, err)
	}

	for _, p := range match.Participants {
		participantID, err := gonanoid.New()
		if err != nil {
			return 0, fmt.Errorf("failed to generate nanoid: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO match_participants (id, match_id, summoner_id, puuid, team_id, champion_id,
				team_position, win, kills, deaths, assists, champ_level, gold_earned,
				total_damage_dealt_to_champions, vision_score, total_minions_killed, neutral_minions_killed,
				summoner_spell1_id, summoner_spell2_id, rune_loadout_id,
				item0, item1, item2, item3, item4, item5, item6, trinket_item)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			participantID, matchRowID, p.SummonerID, p.Puuid, p.TeamID, p.ChampionID,
			p.TeamPosition, p.Win, p.Kills, p.Deaths, p.Assists, p.ChampLevel, p.GoldEarned,
			p.TotalDamageDealtToChampions, p.VisionScore, p.TotalMinionsKilled, p.NeutralMinionsKilled,
			p.SummonerSpell1ID, p.SummonerSpell2ID, nullIfEmpty(p.RuneLoadoutID),
			p.Item0, p.Item1, p.Item2, p.Item3, p.Item4, p.Item5, p.Item6, p.TrinketItem)
		if err != nil {
			return 0, fmt.Errorf("failed to insert participant %s/%s: %w", match.MatchID, p.Puuid, err)
		}
	}

	for _, summonerID := range match.SummonerIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO match_summoners (match_id, summoner_id) VALUES (?, ?)`,
			matchRowID, summonerID)
		if err != nil {
			return 0, fmt.Errorf("failed to link summoner %s to match %s: %w", summonerID, match.MatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit match %s: %w", match.MatchID, err)
	}

	match.ID = matchRowID
	return InsertResultInserted, nil
}

// MarkTemporaryFailure records a retryable upstream fault, creating a tracking
// stub when the match has never been seen. Terminal states are not downgraded.
func (r *MatchRepository) MarkTemporaryFailure(ctx context.Context, matchID string, attemptAt time.Time) error {
	return r.markStatus(ctx, matchID, domain.FetchStatusTemporaryFailure, attemptAt,
		[]domain.FetchStatus{domain.FetchStatusFetched, domain.FetchStatusPermanentlyUnfetchable})
}

// MarkPermanentlyUnfetchable records that the upstream explicitly reported the
// match as gone. An already fetched match is never downgraded.
func (r *MatchRepository) MarkPermanentlyUnfetchable(ctx context.Context, matchID string, attemptAt time.Time) error {
	return r.markStatus(ctx, matchID, domain.FetchStatusPermanentlyUnfetchable, attemptAt,
		[]domain.FetchStatus{domain.FetchStatusFetched})
}

func (r *MatchRepository) markStatus(ctx context.Context, matchID string, status domain.FetchStatus, attemptAt time.Time, preserved []domain.FetchStatus) error {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	keep := make([]string, 0, len(preserved))
	args := []any{id, matchID, status, attemptAt, time.Now(), time.Now()}
	for _, s := range preserved {
		keep = append(keep, "?")
		args = append(args, s)
	}

	query := fmt.Sprintf(`
		INSERT INTO matches (id, match_id, status, last_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(match_id) DO UPDATE SET
			status = CASE WHEN matches.status IN (%s) THEN matches.status ELSE excluded.status END,
			last_attempt_at = excluded.last_attempt_at,
			updated_at = excluded.updated_at`, strings.Join(keep, ", "))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark match %s as %s: %w", matchID, status, err)
	}
	return nil
}

// ListRetryable returns up to limit external match ids in TEMPORARY_FAILURE
// whose last attempt is older than the cutoff, oldest first. Permanently
// unfetchable matches are never selected.
func (r *MatchRepository) ListRetryable(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT match_id FROM matches
		WHERE status = ? AND last_attempt_at IS NOT NULL AND last_attempt_at < ?
		ORDER BY last_attempt_at ASC
		LIMIT ?`, domain.FetchStatusTemporaryFailure, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list retryable matches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetByMatchID returns the stored match header (no participants), or
// (nil, nil) when the external id is untracked.
func (r *MatchRepository) GetByMatchID(ctx context.Context, matchID string) (*domain.Match, error) {
	// Failure stubs carry NULLs for the payload columns.
	row := r.db.QueryRowContext(ctx, `
		SELECT id, match_id, status, last_attempt_at, COALESCE(match_date, 0), COALESCE(duration, 0),
			COALESCE(patch, ''), COALESCE(queue_type, ''), created_at, updated_at
		FROM matches WHERE match_id = ?`, matchID)

	var m domain.Match
	var lastAttempt sql.NullTime
	err := row.Scan(&m.ID, &m.MatchID, &m.Status, &lastAttempt, &m.MatchDate, &m.Duration,
		&m.Patch, &m.QueueType, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match %s: %w", matchID, err)
	}
	if lastAttempt.Valid {
		m.LastAttemptAt = &lastAttempt.Time
	}
	return &m, nil
}

// CountByStatus is a diagnostic view over all tracked matches, including the
// permanently unfetchable ones that every retry path filters out.
func (r *MatchRepository) CountByStatus(ctx context.Context, status domain.FetchStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count matches by status: %w", err)
	}
	return count, nil
}
