package repository

import (
	"database/sql"
	"os"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rift-analytics/internal/database"
	"rift-analytics/internal/domain"
)

// setupTestDB creates a temporary SQLite database with the full schema
// applied.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	tmpfile, err := os.CreateTemp("", "testdb_repository_*.db")
	require.NoError(t, err)

	db, err := database.New(tmpfile.Name(), zerolog.Nop())
	require.NoError(t, err)

	teardown := func() {
		db.Close()
		os.Remove(tmpfile.Name())
	}

	return db, teardown
}

// seedSummoner inserts a bare summoner row and returns its id.
func seedSummoner(t *testing.T, db *sql.DB, puuid string) string {
	t.Helper()

	id, err := gonanoid.New()
	require.NoError(t, err)

	now := time.Now()
	_, err = db.Exec(`
		INSERT INTO summoners (id, puuid, game_name, platform_region, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, puuid, "player-"+puuid, "na1", now, now)
	require.NoError(t, err)
	return id
}

// seedRank attaches a solo-queue rank snapshot to a summoner.
func seedRank(t *testing.T, db *sql.DB, summonerID, queueType, tier string) {
	t.Helper()

	_, err := db.Exec(`
		INSERT INTO summoner_ranks (summoner_id, queue_type, tier, division, updated_at)
		VALUES (?, ?, ?, 'I', ?)`,
		summonerID, queueType, tier, time.Now())
	require.NoError(t, err)
}

// seedFetchedMatch inserts a FETCHED match header row and returns its row id.
func seedFetchedMatch(t *testing.T, db *sql.DB, matchID, patch string, matchDate int64) string {
	t.Helper()

	id, err := gonanoid.New()
	require.NoError(t, err)

	now := time.Now()
	_, err = db.Exec(`
		INSERT INTO matches (id, match_id, status, match_date, duration, patch, queue_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1800, ?, ?, ?, ?)`,
		id, matchID, domain.FetchStatusFetched, matchDate, patch, "RANKED_SOLO_5x5", now, now)
	require.NoError(t, err)
	return id
}

// seedParticipant inserts one participant row linking a match and a summoner.
func seedParticipant(t *testing.T, db *sql.DB, matchRowID, summonerID string, championID int, role string, win bool, kills, deaths, assists int) {
	t.Helper()

	id, err := gonanoid.New()
	require.NoError(t, err)

	_, err = db.Exec(`
		INSERT INTO match_participants (id, match_id, summoner_id, team_id, champion_id, team_position, win, kills, deaths, assists)
		VALUES (?, ?, ?, 100, ?, ?, ?, ?, ?, ?)`,
		id, matchRowID, summonerID, championID, role, win, kills, deaths, assists)
	require.NoError(t, err)
}

// testMatch builds a valid ten-participant match aggregate over freshly
// seeded summoners.
func testMatch(t *testing.T, db *sql.DB, matchID string) *domain.Match {
	t.Helper()

	match := &domain.Match{
		MatchID:   matchID,
		MatchDate: time.Now().UnixMilli(),
		Duration:  1954,
		Patch:     "15.4",
		QueueType: "RANKED_SOLO_5x5",
	}
	for i := 0; i < 10; i++ {
		puuid, err := gonanoid.New()
		require.NoError(t, err)
		summonerID := seedSummoner(t, db, puuid)
		teamID := 100
		if i >= 5 {
			teamID = 200
		}
		match.Participants = append(match.Participants, domain.MatchParticipant{
			SummonerID: summonerID,
			Puuid:      puuid,
			TeamID:     teamID,
			ChampionID: 100 + i,
			Win:        teamID == 100,
			Kills:      i,
		})
		match.SummonerIDs = append(match.SummonerIDs, summonerID)
	}
	return match
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
