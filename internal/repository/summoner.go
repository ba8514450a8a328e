package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"rift-analytics/internal/domain"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type SummonerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSummonerRepository(sqlDB *sql.DB, logger zerolog.Logger) *SummonerRepository {
	return &SummonerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// GetByPuuid returns the stored summoner, or (nil, nil) when the puuid has
// never been seen. Rank rows are loaded only when withRanks is set.
func (r *SummonerRepository) GetByPuuid(ctx context.Context, puuid string, withRanks bool) (*domain.Summoner, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, puuid, game_name, tag_line, platform_region, region,
		       profile_icon_id, summoner_level, revision_date, created_at, updated_at
		FROM summoners WHERE puuid = ?`, puuid)

	var s domain.Summoner
	err := row.Scan(&s.ID, &s.Puuid, &s.GameName, &s.TagLine, &s.PlatformRegion, &s.Region,
		&s.ProfileIconID, &s.SummonerLevel, &s.RevisionDate, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summoner %s: %w", puuid, err)
	}

	if withRanks {
		ranks, err := r.getRanks(ctx, s.ID)
		if err != nil {
			return nil, err
		}
		s.Ranks = ranks
	}

	return &s, nil
}

func (r *SummonerRepository) getRanks(ctx context.Context, summonerID string) ([]domain.Rank, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT summoner_id, queue_type, tier, division, league_points, wins, losses, updated_at
		FROM summoner_ranks WHERE summoner_id = ?`, summonerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranks for summoner %s: %w", summonerID, err)
	}
	defer rows.Close()

	var ranks []domain.Rank
	for rows.Next() {
		var rank domain.Rank
		if err := rows.Scan(&rank.SummonerID, &rank.QueueType, &rank.Tier, &rank.Division,
			&rank.LeaguePoints, &rank.Wins, &rank.Losses, &rank.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rank: %w", err)
		}
		ranks = append(ranks, rank)
	}
	return ranks, rows.Err()
}

// Upsert creates the summoner on first sighting and updates it in place on
// every refresh. Rank snapshots carried on the aggregate are upserted per
// queue. The summoner's ID field is populated on return.
func (r *SummonerRepository) Upsert(ctx context.Context, s *domain.Summoner) error {
	now := time.Now()

	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO summoners (id, puuid, game_name, tag_line, platform_region, region,
			profile_icon_id, summoner_level, revision_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(puuid) DO UPDATE SET
			game_name = excluded.game_name,
			tag_line = excluded.tag_line,
			platform_region = excluded.platform_region,
			region = excluded.region,
			profile_icon_id = excluded.profile_icon_id,
			summoner_level = excluded.summoner_level,
			revision_date = excluded.revision_date,
			updated_at = excluded.updated_at`,
		id, s.Puuid, s.GameName, s.TagLine, s.PlatformRegion, s.Region,
		s.ProfileIconID, s.SummonerLevel, s.RevisionDate, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert summoner %s: %w", s.Puuid, err)
	}

	// Re-read the id: a conflicting row keeps its original id.
	if err := tx.QueryRowContext(ctx, `SELECT id FROM summoners WHERE puuid = ?`, s.Puuid).Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to resolve summoner id for %s: %w", s.Puuid, err)
	}

	for _, rank := range s.Ranks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO summoner_ranks (summoner_id, queue_type, tier, division, league_points, wins, losses, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(summoner_id, queue_type) DO UPDATE SET
				tier = excluded.tier,
				division = excluded.division,
				league_points = excluded.league_points,
				wins = excluded.wins,
				losses = excluded.losses,
				updated_at = excluded.updated_at`,
			s.ID, rank.QueueType, rank.Tier, rank.Division, rank.LeaguePoints, rank.Wins, rank.Losses, now)
		if err != nil {
			return fmt.Errorf("failed to upsert rank %s for summoner %s: %w", rank.QueueType, s.Puuid, err)
		}
	}

	return tx.Commit()
}
