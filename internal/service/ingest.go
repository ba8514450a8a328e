package service

import (
	"context"
	"errors"
	"fmt"
	"rift-analytics/internal/domain"
	"rift-analytics/internal/repository"
	"rift-analytics/internal/riot"
	"time"

	"github.com/rs/zerolog"
)

// MatchIngestor drives one match through transform and persistence, owning
// the status transitions on the tracked match record.
type MatchIngestor struct {
	transformer *MatchTransformer
	matchRepo   *repository.MatchRepository
	analytics   *AnalyticsService
	logger      zerolog.Logger
}

func NewMatchIngestor(transformer *MatchTransformer, matchRepo *repository.MatchRepository, analytics *AnalyticsService, logger zerolog.Logger) *MatchIngestor {
	return &MatchIngestor{transformer: transformer, matchRepo: matchRepo, analytics: analytics, logger: logger}
}

// Ingest is idempotent per external match id: a second attempt, including a
// concurrent one, is a no-op rather than an error.
func (i *MatchIngestor) Ingest(ctx context.Context, matchID, regionalRoute, platformRoute string) error {
	match, err := i.transformer.Transform(ctx, matchID, regionalRoute, platformRoute)
	if errors.Is(err, riot.ErrNotFound) {
		// The upstream explicitly has no data: terminal, not retryable.
		if markErr := i.matchRepo.MarkPermanentlyUnfetchable(ctx, matchID, time.Now()); markErr != nil {
			return fmt.Errorf("failed to mark match %s unfetchable: %w", matchID, markErr)
		}
		i.logger.Info().Str("match_id", matchID).Msg("match marked permanently unfetchable")
		return nil
	}
	if err != nil {
		if markErr := i.matchRepo.MarkTemporaryFailure(ctx, matchID, time.Now()); markErr != nil {
			i.logger.Error().Err(markErr).Str("match_id", matchID).Msg("failed to record temporary failure")
		}
		return fmt.Errorf("failed to transform match %s: %w", matchID, err)
	}

	result, err := i.matchRepo.InsertMatch(ctx, match)
	if err != nil {
		// Unexpected persistence faults propagate; they are not upstream
		// failures and must not be masked as retryable fetch problems.
		return fmt.Errorf("failed to persist match %s: %w", matchID, err)
	}
	if result == repository.InsertResultAlreadyExists {
		i.logger.Debug().Str("match_id", matchID).Msg("match already ingested, skipping")
		return nil
	}

	i.invalidateChampions(ctx, match.Participants)

	i.logger.Info().
		Str("match_id", matchID).
		Int("participants", len(match.Participants)).
		Msg("match ingested")
	return nil
}

// invalidateChampions drops cached analytics for every champion touched by the
// new match. Invalidation failures are logged, never fatal: a stale entry
// stays valid until its TTL expires.
func (i *MatchIngestor) invalidateChampions(ctx context.Context, participants []domain.MatchParticipant) {
	seen := make(map[int]struct{})
	for _, p := range participants {
		if _, ok := seen[p.ChampionID]; ok {
			continue
		}
		seen[p.ChampionID] = struct{}{}
		if err := i.analytics.InvalidateChampion(ctx, p.ChampionID); err != nil {
			i.logger.Warn().Err(err).Int("champion_id", p.ChampionID).Msg("failed to invalidate champion cache")
		}
	}
}
