package service

import (
	"context"
	"fmt"
	"rift-analytics/internal/constants"
	"rift-analytics/internal/domain"
	"rift-analytics/internal/lock"
	"rift-analytics/internal/repository"

	"github.com/rs/zerolog"
)

// RefreshService re-syncs one summoner's profile, ranks, and recent ranked
// matches on demand. Concurrent refreshes of the same summoner are collapsed
// by an advisory lock; the loser reports the refresh as already in progress.
type RefreshService struct {
	riot         RiotClient
	summonerRepo *repository.SummonerRepository
	matchRepo    *repository.MatchRepository
	ingestor     *MatchIngestor
	lock         *lock.RefreshLock
	logger       zerolog.Logger
}

func NewRefreshService(riotClient RiotClient, summonerRepo *repository.SummonerRepository, matchRepo *repository.MatchRepository, ingestor *MatchIngestor, refreshLock *lock.RefreshLock, logger zerolog.Logger) *RefreshService {
	return &RefreshService{
		riot:         riotClient,
		summonerRepo: summonerRepo,
		matchRepo:    matchRepo,
		ingestor:     ingestor,
		lock:         refreshLock,
		logger:       logger,
	}
}

// RefreshResult reports what one refresh pass did.
type RefreshResult struct {
	Puuid          string `json:"puuid"`
	AlreadyRunning bool   `json:"alreadyRunning"`
	MatchesFound   int    `json:"matchesFound"`
	MatchesNew     int    `json:"matchesNew"`
	MatchesFailed  int    `json:"matchesFailed"`
}

// RefreshSummoner updates the stored summoner from the Riot API and ingests
// their latest ranked matches. The advisory lock is released on every exit
// path; a release failure is logged and otherwise ignored since the lock
// self-expires.
func (s *RefreshService) RefreshSummoner(ctx context.Context, platformRegion, puuid string) (*RefreshResult, error) {
	lockKey := "refresh:summoner:" + puuid
	token, acquired, err := s.lock.Acquire(ctx, lockKey, constants.RefreshLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire refresh lock for %s: %w", puuid, err)
	}
	if !acquired {
		s.logger.Info().Str("puuid", puuid).Msg("refresh already in progress")
		return &RefreshResult{Puuid: puuid, AlreadyRunning: true}, nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.logger.Warn().Err(err).Str("puuid", puuid).Msg("failed to release refresh lock")
		}
	}()

	regionalRoute := regionalRouteFor(platformRegion)
	platformRoute := platformRouteFor(platformRegion)

	if err := s.syncSummoner(ctx, puuid, regionalRoute, platformRoute); err != nil {
		return nil, err
	}

	matchIDs, err := s.riot.GetMatchIDs(ctx, regionalRoute, puuid, constants.RefreshMatchCount, constants.RankedSoloQueueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent matches for %s: %w", puuid, err)
	}

	result := &RefreshResult{Puuid: puuid, MatchesFound: len(matchIDs)}
	for _, matchID := range matchIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		existing, err := s.matchRepo.GetByMatchID(ctx, matchID)
		if err != nil {
			return result, fmt.Errorf("failed to check match %s: %w", matchID, err)
		}
		if existing != nil && existing.Status == domain.FetchStatusFetched {
			continue
		}
		if err := s.ingestor.Ingest(ctx, matchID, regionalRoute, platformRoute); err != nil {
			result.MatchesFailed++
			s.logger.Warn().Err(err).Str("match_id", matchID).Msg("refresh ingest failed")
			continue
		}
		result.MatchesNew++
	}

	s.logger.Info().
		Str("puuid", puuid).
		Int("matches_found", result.MatchesFound).
		Int("matches_new", result.MatchesNew).
		Int("matches_failed", result.MatchesFailed).
		Msg("summoner refreshed")
	return result, nil
}

// syncSummoner re-fetches identity, profile, and ranks, then upserts them.
func (s *RefreshService) syncSummoner(ctx context.Context, puuid, regionalRoute, platformRoute string) error {
	dto, err := s.riot.GetSummonerByPuuid(ctx, platformRoute, puuid)
	if err != nil {
		return fmt.Errorf("failed to fetch summoner %s: %w", puuid, err)
	}
	account, err := s.riot.GetAccountByPuuid(ctx, regionalRoute, puuid)
	if err != nil {
		return fmt.Errorf("failed to fetch account %s: %w", puuid, err)
	}
	entries, err := s.riot.GetLeagueEntries(ctx, platformRoute, puuid)
	if err != nil {
		return fmt.Errorf("failed to fetch league entries %s: %w", puuid, err)
	}

	summoner := &domain.Summoner{
		Puuid:          dto.Puuid,
		GameName:       account.GameName,
		TagLine:        account.TagLine,
		PlatformRegion: platformRoute,
		Region:         regionalRoute,
		ProfileIconID:  dto.ProfileIconID,
		SummonerLevel:  dto.SummonerLevel,
		RevisionDate:   dto.RevisionDate,
		Ranks:          ranksFromEntries(entries),
	}
	if err := s.summonerRepo.Upsert(ctx, summoner); err != nil {
		return fmt.Errorf("failed to upsert summoner %s: %w", puuid, err)
	}
	return nil
}
