package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rift-analytics/internal/riot"
)

func TestTransformBuildsFullAggregate(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	match, err := env.transformer.Transform(context.Background(), "NA1_100", "americas", "na1")
	require.NoError(t, err)

	assert.Equal(t, "NA1_100", match.MatchID)
	assert.Equal(t, "15.4", match.Patch)
	assert.Equal(t, "RANKED_SOLO_5x5", match.QueueType)
	require.Len(t, match.Participants, 10)
	assert.Len(t, match.SummonerIDs, 10)

	for _, p := range match.Participants {
		assert.NotEmpty(t, p.SummonerID, "every participant resolves to a stored summoner")
		assert.NotEmpty(t, p.RuneLoadoutID)
		assert.Equal(t, 3364, p.TrinketItem)
	}
	assert.True(t, match.Participants[0].Win)
	assert.False(t, match.Participants[9].Win)
}

func TestTransformCanonicalizesSharedRuneLoadouts(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	// Every fake participant carries the same perk combination.
	match, err := env.transformer.Transform(context.Background(), "NA1_101", "americas", "na1")
	require.NoError(t, err)

	loadoutID := match.Participants[0].RuneLoadoutID
	for _, p := range match.Participants {
		assert.Equal(t, loadoutID, p.RuneLoadoutID)
	}

	var loadouts int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM rune_loadouts`).Scan(&loadouts))
	assert.Equal(t, 1, loadouts)
}

func TestTransformDeduplicatesSummonerLinkage(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	env.riot.getMatch = func(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error) {
		dto := makeMatchDTO(matchID, 4)
		// The payload repeats one player.
		dto.Info.Participants[3].Puuid = dto.Info.Participants[0].Puuid
		return dto, nil
	}

	match, err := env.transformer.Transform(context.Background(), "NA1_102", "americas", "na1")
	require.NoError(t, err)
	assert.Len(t, match.Participants, 4)
	assert.Len(t, match.SummonerIDs, 3, "a repeated summoner is linked once")
}

func TestTransformPassesNotFoundThrough(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	env.riot.getMatch = func(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error) {
		return nil, riot.ErrNotFound
	}

	_, err := env.transformer.Transform(context.Background(), "NA1_103", "americas", "na1")
	assert.ErrorIs(t, err, riot.ErrNotFound)
}

func TestTransformPositionFallback(t *testing.T) {
	env, teardown := newTestEnv(t)
	defer teardown()

	env.riot.getMatch = func(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error) {
		dto := makeMatchDTO(matchID, 2)
		dto.Info.Participants[0].TeamPosition = ""
		dto.Info.Participants[0].IndividualPosition = "JUNGLE"
		return dto, nil
	}

	match, err := env.transformer.Transform(context.Background(), "NA1_104", "americas", "na1")
	require.NoError(t, err)
	assert.Equal(t, "JUNGLE", match.Participants[0].TeamPosition)
	assert.Equal(t, "MIDDLE", match.Participants[1].TeamPosition)
}
