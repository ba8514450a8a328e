package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rift-analytics/internal/cache"
	"rift-analytics/internal/database"
	"rift-analytics/internal/domain"
	"rift-analytics/internal/lock"
	"rift-analytics/internal/repository"
	"rift-analytics/internal/riot"
)

// fakeRiotClient is a scriptable RiotClient. Unset hooks fall back to canned
// data derived from the requested id.
type fakeRiotClient struct {
	getMatch    func(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error)
	getMatchIDs func(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error)

	matchCalls atomic.Int32
}

func (f *fakeRiotClient) GetMatch(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error) {
	f.matchCalls.Add(1)
	if f.getMatch != nil {
		return f.getMatch(ctx, regionalRoute, matchID)
	}
	return makeMatchDTO(matchID, 10), nil
}

func (f *fakeRiotClient) GetMatchIDs(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error) {
	if f.getMatchIDs != nil {
		return f.getMatchIDs(ctx, regionalRoute, puuid, count, queueID)
	}
	return nil, nil
}

func (f *fakeRiotClient) GetAccountByPuuid(ctx context.Context, regionalRoute, puuid string) (*riot.AccountDTO, error) {
	return &riot.AccountDTO{Puuid: puuid, GameName: "player-" + puuid, TagLine: "NA1"}, nil
}

func (f *fakeRiotClient) GetSummonerByPuuid(ctx context.Context, platformRoute, puuid string) (*riot.SummonerDTO, error) {
	return &riot.SummonerDTO{Puuid: puuid, ProfileIconID: 1, SummonerLevel: 100, RevisionDate: 1700000000000}, nil
}

func (f *fakeRiotClient) GetLeagueEntries(ctx context.Context, platformRoute, puuid string) ([]riot.LeagueEntryDTO, error) {
	return []riot.LeagueEntryDTO{
		{QueueType: "RANKED_SOLO_5x5", Tier: "GOLD", Rank: "II", LeaguePoints: 54, Wins: 120, Losses: 110},
	}, nil
}

// makeMatchDTO builds a complete ranked-solo payload with n participants,
// team 100 winning.
func makeMatchDTO(matchID string, n int) *riot.MatchDTO {
	dto := &riot.MatchDTO{
		Metadata: riot.MatchMetadataDTO{MatchID: matchID, DataVersion: "2"},
		Info: riot.MatchInfoDTO{
			GameCreation: time.Now().UnixMilli(),
			GameDuration: 1954,
			GameVersion:  "15.4.656.1234",
			QueueID:      420,
			PlatformID:   "NA1",
		},
	}
	for i := 0; i < n; i++ {
		teamID := 100
		if i >= n/2 {
			teamID = 200
		}
		dto.Info.Participants = append(dto.Info.Participants, riot.ParticipantDTO{
			Puuid:        fmt.Sprintf("%s-puuid-%d", matchID, i),
			TeamID:       teamID,
			ChampionID:   100 + i,
			TeamPosition: "MIDDLE",
			Win:          teamID == 100,
			Kills:        i,
			Deaths:       2,
			Assists:      4,
			Item6:        3364,
			Perks: riot.PerksDTO{
				StatPerks: riot.StatPerksDTO{Defense: 5002, Flex: 5008, Offense: 5005},
				Styles: []riot.PerkStyleDTO{
					{
						Description: "primaryStyle",
						Style:       8100,
						Selections: []riot.PerkStyleSelectionDTO{
							{Perk: 8112, Var1: 1200}, {Perk: 8143}, {Perk: 8138}, {Perk: 8135},
						},
					},
					{
						Description: "subStyle",
						Style:       8300,
						Selections:  []riot.PerkStyleSelectionDTO{{Perk: 8345}, {Perk: 8347}},
					},
				},
			},
		})
	}
	return dto
}

// testEnv wires the full service stack over a temporary database, a nil
// shared cache tier, and a scriptable riot client.
type testEnv struct {
	db           *sql.DB
	riot         *fakeRiotClient
	cache        *cache.Cache
	summonerRepo *repository.SummonerRepository
	matchRepo    *repository.MatchRepository
	runeRepo     *repository.RuneLoadoutRepository
	aggregates   *repository.AggregateRepository
	patches      *repository.PatchRepository
	transformer  *MatchTransformer
	ingestor     *MatchIngestor
	analytics    *AnalyticsService
	liveGames    *LiveGameService
	retry        *RetryCoordinator
	refresh      *RefreshService
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "testdb_service_*.db")
	require.NoError(t, err)

	db, err := database.New(tmpfile.Name(), zerolog.Nop())
	require.NoError(t, err)

	log := zerolog.Nop()
	env := &testEnv{
		db:           db,
		riot:         &fakeRiotClient{},
		cache:        cache.New(nil, log),
		summonerRepo: repository.NewSummonerRepository(db, log),
		matchRepo:    repository.NewMatchRepository(db, log),
		runeRepo:     repository.NewRuneLoadoutRepository(db, log),
		aggregates:   repository.NewAggregateRepository(db, log),
		patches:      repository.NewPatchRepository(db, log),
	}
	env.transformer = NewMatchTransformer(env.riot, env.summonerRepo, env.runeRepo, log)
	env.analytics = NewAnalyticsService(env.aggregates, env.runeRepo, env.patches, env.cache, log)
	env.ingestor = NewMatchIngestor(env.transformer, env.matchRepo, env.analytics, log)
	env.liveGames = NewLiveGameService(env.summonerRepo, env.aggregates, env.analytics, log)
	env.retry = NewRetryCoordinator(env.matchRepo, env.ingestor, log)
	env.refresh = NewRefreshService(env.riot, env.summonerRepo, env.matchRepo, env.ingestor, lock.New(nil, log), log)

	teardown := func() {
		db.Close()
		os.Remove(tmpfile.Name())
	}
	return env, teardown
}

// seedGames persists games single-participant matches for one summoner on one
// champion, with wins of them won. The patch is written as-is.
func (env *testEnv) seedGames(t *testing.T, puuid string, championID int, role, tier, patch, idPrefix string, games, wins int) {
	t.Helper()

	summoner := &domain.Summoner{
		Puuid:          puuid,
		GameName:       "player-" + puuid,
		PlatformRegion: "na1",
		Region:         "americas",
	}
	if tier != "" {
		summoner.Ranks = []domain.Rank{{QueueType: "RANKED_SOLO_5x5", Tier: tier, Division: "II"}}
	}
	require.NoError(t, env.summonerRepo.Upsert(context.Background(), summoner))

	for i := 0; i < games; i++ {
		match := &domain.Match{
			MatchID:   fmt.Sprintf("%s_%04d", idPrefix, i),
			MatchDate: time.Now().Add(-time.Duration(games-i) * time.Minute).UnixMilli(),
			Duration:  1800,
			Patch:     patch,
			QueueType: "RANKED_SOLO_5x5",
			Participants: []domain.MatchParticipant{{
				SummonerID:   summoner.ID,
				Puuid:        puuid,
				TeamID:       100,
				ChampionID:   championID,
				TeamPosition: role,
				Win:          i < wins,
				Kills:        6,
				Deaths:       3,
				Assists:      6,
			}},
			SummonerIDs: []string{summoner.ID},
		}
		result, err := env.matchRepo.InsertMatch(context.Background(), match)
		require.NoError(t, err)
		require.Equal(t, repository.InsertResultInserted, result)
	}
}

// seedBuildGames persists single-participant games carrying a full item set
// and a canonical rune loadout. Returns the loadout's row id.
func (env *testEnv) seedBuildGames(t *testing.T, puuid string, championID int, role, patch, idPrefix string, games, wins int, items [6]int, trinket int, loadout domain.RuneLoadout) string {
	t.Helper()

	canonical, err := env.runeRepo.FindOrCreate(context.Background(), &loadout)
	require.NoError(t, err)

	summoner := &domain.Summoner{
		Puuid:          puuid,
		GameName:       "player-" + puuid,
		PlatformRegion: "na1",
		Region:         "americas",
	}
	require.NoError(t, env.summonerRepo.Upsert(context.Background(), summoner))

	for i := 0; i < games; i++ {
		match := &domain.Match{
			MatchID:   fmt.Sprintf("%s_%04d", idPrefix, i),
			MatchDate: time.Now().Add(-time.Duration(games-i) * time.Minute).UnixMilli(),
			Duration:  1800,
			Patch:     patch,
			QueueType: "RANKED_SOLO_5x5",
			Participants: []domain.MatchParticipant{{
				SummonerID:    summoner.ID,
				Puuid:         puuid,
				TeamID:        100,
				ChampionID:    championID,
				TeamPosition:  role,
				Win:           i < wins,
				RuneLoadoutID: canonical.ID,
				Item0:         items[0],
				Item1:         items[1],
				Item2:         items[2],
				Item3:         items[3],
				Item4:         items[4],
				Item5:         items[5],
				TrinketItem:   trinket,
			}},
			SummonerIDs: []string{summoner.ID},
		}
		result, err := env.matchRepo.InsertMatch(context.Background(), match)
		require.NoError(t, err)
		require.Equal(t, repository.InsertResultInserted, result)
	}
	return canonical.ID
}

// seedMatchupGames persists two-participant games pitting championID against
// opponentID in the same position on opposite teams.
func (env *testEnv) seedMatchupGames(t *testing.T, championID, opponentID int, role, patch, idPrefix string, games, wins int) {
	t.Helper()

	blue := &domain.Summoner{
		Puuid:          idPrefix + "-blue",
		GameName:       "player-" + idPrefix + "-blue",
		PlatformRegion: "na1",
		Region:         "americas",
	}
	red := &domain.Summoner{
		Puuid:          idPrefix + "-red",
		GameName:       "player-" + idPrefix + "-red",
		PlatformRegion: "na1",
		Region:         "americas",
	}
	require.NoError(t, env.summonerRepo.Upsert(context.Background(), blue))
	require.NoError(t, env.summonerRepo.Upsert(context.Background(), red))

	for i := 0; i < games; i++ {
		won := i < wins
		match := &domain.Match{
			MatchID:   fmt.Sprintf("%s_%04d", idPrefix, i),
			MatchDate: time.Now().Add(-time.Duration(games-i) * time.Minute).UnixMilli(),
			Duration:  1800,
			Patch:     patch,
			QueueType: "RANKED_SOLO_5x5",
			Participants: []domain.MatchParticipant{
				{
					SummonerID:   blue.ID,
					Puuid:        blue.Puuid,
					TeamID:       100,
					ChampionID:   championID,
					TeamPosition: role,
					Win:          won,
				},
				{
					SummonerID:   red.ID,
					Puuid:        red.Puuid,
					TeamID:       200,
					ChampionID:   opponentID,
					TeamPosition: role,
					Win:          !won,
				},
			},
			SummonerIDs: []string{blue.ID, red.ID},
		}
		result, err := env.matchRepo.InsertMatch(context.Background(), match)
		require.NoError(t, err)
		require.Equal(t, repository.InsertResultInserted, result)
	}
}
