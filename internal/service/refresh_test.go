package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rift-analytics/internal/constants"
	"rift-analytics/internal/domain"
	"rift-analytics/internal/riot"
)

func TestRefreshSummonerSyncsProfileAndIngestsNewMatches(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	ctx := context.Background()

	// One of the recent matches is already in the store.
	require.NoError(t, env.ingestor.Ingest(ctx, "NA1_301", "americas", "na1"))
	env.riot.matchCalls.Store(0)

	env.riot.getMatchIDs = func(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error) {
		assert.Equal(t, constants.RefreshMatchCount, count)
		assert.Equal(t, constants.RankedSoloQueueID, queueID)
		return []string{"NA1_301", "NA1_302", "NA1_303"}, nil
	}

	result, err := env.refresh.RefreshSummoner(ctx, "NA1", "refresh-puuid")
	require.NoError(t, err)
	assert.False(t, result.AlreadyRunning)
	assert.Equal(t, 3, result.MatchesFound)
	assert.Equal(t, 2, result.MatchesNew, "the already ingested match is skipped")
	assert.Equal(t, 0, result.MatchesFailed)
	assert.Equal(t, int32(2), env.riot.matchCalls.Load())

	summoner, err := env.summonerRepo.GetByPuuid(ctx, "refresh-puuid", true)
	require.NoError(t, err)
	require.NotNil(t, summoner)
	assert.Equal(t, "player-refresh-puuid", summoner.GameName)
	require.Len(t, summoner.Ranks, 1)
	assert.Equal(t, "GOLD", summoner.Ranks[0].Tier)
}

func TestRefreshSummonerRetriesFailureStubs(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	ctx := context.Background()

	// A match tracked as a temporary failure is attempted again during a
	// refresh.
	env.riot.getMatch = func(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error) {
		return nil, &riot.StatusError{StatusCode: 503, URL: "https://americas.example"}
	}
	require.Error(t, env.ingestor.Ingest(ctx, "NA1_310", "americas", "na1"))
	env.riot.getMatch = nil

	env.riot.getMatchIDs = func(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error) {
		return []string{"NA1_310"}, nil
	}

	result, err := env.refresh.RefreshSummoner(ctx, "NA1", "stub-puuid")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchesNew)
	assert.Equal(t, domain.FetchStatusFetched, matchStatus(t, env, "NA1_310"))
}

func TestRefreshSummonerIsolatesIngestFailures(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	env.riot.getMatchIDs = func(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error) {
		return []string{"NA1_320", "NA1_321"}, nil
	}
	env.riot.getMatch = func(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error) {
		if matchID == "NA1_320" {
			return nil, &riot.StatusError{StatusCode: 429, URL: "https://americas.example"}
		}
		return makeMatchDTO(matchID, 10), nil
	}

	result, err := env.refresh.RefreshSummoner(context.Background(), "NA1", "isolate-puuid")
	require.NoError(t, err)
	assert.Equal(t, 1, result.MatchesFailed)
	assert.Equal(t, 1, result.MatchesNew)
}
