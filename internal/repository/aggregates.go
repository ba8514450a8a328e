package repository

import (
	"context"
	"database/sql"
	"fmt"
	"rift-analytics/internal/constants"
	"rift-analytics/internal/domain"

	"github.com/rs/zerolog"
)

// WinRateGroup is one (role, rank tier) aggregation bucket for a champion.
type WinRateGroup struct {
	Role     string
	RankTier string
	Games    int
	Wins     int
}

// RecentForm summarizes a summoner's last N ranked games.
type RecentForm struct {
	Games   int
	Wins    int
	Kills   int
	Deaths  int
	Assists int
}

func (f RecentForm) WinRate() float64 {
	if f.Games == 0 {
		return 0
	}
	return float64(f.Wins) / float64(f.Games)
}

func (f RecentForm) KDA() float64 {
	deaths := f.Deaths
	if deaths == 0 {
		deaths = 1
	}
	return float64(f.Kills+f.Assists) / float64(deaths)
}

// LoadoutGroup is one rune-loadout aggregation bucket for a champion.
type LoadoutGroup struct {
	RuneLoadoutID string
	Games         int
	Wins          int
}

// MatchupGroup aggregates a champion's games against one lane opponent.
type MatchupGroup struct {
	OpponentChampionID int
	Games              int
	Wins               int
}

type AggregateRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewAggregateRepository(sqlDB *sql.DB, logger zerolog.Logger) *AggregateRepository {
	return &AggregateRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// WinRateGroups aggregates persisted participants for one champion on one
// patch, grouped by (role, rank tier). Groups below minGames are suppressed in
// the query itself so an under-sampled bucket never leaves the store. Rank
// tier, region and role filters are optional; "" means all.
func (r *AggregateRepository) WinRateGroups(ctx context.Context, championID int, patch, rankTier, region, role string, minGames int) ([]WinRateGroup, error) {
	query := `
		SELECT p.team_position AS role,
		       COALESCE(NULLIF(sr.tier, ''), 'UNRANKED') AS rank_tier,
		       COUNT(*) AS games,
		       SUM(p.win) AS wins
		FROM match_participants p
		JOIN matches m ON m.id = p.match_id
		JOIN summoners s ON s.id = p.summoner_id
		LEFT JOIN summoner_ranks sr ON sr.summoner_id = s.id AND sr.queue_type = ?
		WHERE p.champion_id = ? AND m.patch = ? AND m.status = ?`
	args := []any{constants.RankedSoloQueueType, championID, patch, domain.FetchStatusFetched}
	query, args = appendParticipantFilters(query, args, rankTier, region, role)

	query += `
		GROUP BY p.team_position, COALESCE(NULLIF(sr.tier, ''), 'UNRANKED')
		HAVING COUNT(*) >= ?
		ORDER BY games DESC`
	args = append(args, minGames)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate win rates for champion %d: %w", championID, err)
	}
	defer rows.Close()

	var groups []WinRateGroup
	for rows.Next() {
		var g WinRateGroup
		if err := rows.Scan(&g.Role, &g.RankTier, &g.Games, &g.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan win rate group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// RoleTierTotals counts all persisted participants per (role, rank tier) on a
// patch, across every champion. Used as the pick-rate denominator.
func (r *AggregateRepository) RoleTierTotals(ctx context.Context, patch, region string) (map[string]int, error) {
	query := `
		SELECT p.team_position AS role,
		       COALESCE(NULLIF(sr.tier, ''), 'UNRANKED') AS rank_tier,
		       COUNT(*) AS games
		FROM match_participants p
		JOIN matches m ON m.id = p.match_id
		JOIN summoners s ON s.id = p.summoner_id
		LEFT JOIN summoner_ranks sr ON sr.summoner_id = s.id AND sr.queue_type = ?
		WHERE m.patch = ? AND m.status = ?`
	args := []any{constants.RankedSoloQueueType, patch, domain.FetchStatusFetched}

	if region != "" {
		query += ` AND s.platform_region = ?`
		args = append(args, region)
	}
	query += ` GROUP BY p.team_position, COALESCE(NULLIF(sr.tier, ''), 'UNRANKED')`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count role/tier totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var role, tier string
		var games int
		if err := rows.Scan(&role, &tier, &games); err != nil {
			return nil, fmt.Errorf("failed to scan role/tier total: %w", err)
		}
		totals[role+"|"+tier] = games
	}
	return totals, rows.Err()
}

// RecentFormFor summarizes the summoner's latest n persisted games.
func (r *AggregateRepository) RecentFormFor(ctx context.Context, summonerID string, n int) (*RecentForm, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(win), 0), COALESCE(SUM(kills), 0),
		       COALESCE(SUM(deaths), 0), COALESCE(SUM(assists), 0)
		FROM (
			SELECT p.win, p.kills, p.deaths, p.assists
			FROM match_participants p
			JOIN matches m ON m.id = p.match_id
			WHERE p.summoner_id = ? AND m.status = ?
			ORDER BY m.match_date DESC
			LIMIT ?
		)`, summonerID, domain.FetchStatusFetched, n)

	var form RecentForm
	if err := row.Scan(&form.Games, &form.Wins, &form.Kills, &form.Deaths, &form.Assists); err != nil {
		return nil, fmt.Errorf("failed to summarize recent form for summoner %s: %w", summonerID, err)
	}
	return &form, nil
}

// LoadoutGroups aggregates a champion's games per canonical rune loadout,
// suppressing loadouts below minGames in the query. Ordering by SUM(win) is
// ordering by games * win rate, since the product reduces to the win count.
func (r *AggregateRepository) LoadoutGroups(ctx context.Context, championID int, patch, rankTier, region, role string, minGames, limit int) ([]LoadoutGroup, error) {
	query := `
		SELECT p.rune_loadout_id, COUNT(*) AS games, SUM(p.win) AS wins
		FROM match_participants p
		JOIN matches m ON m.id = p.match_id
		JOIN summoners s ON s.id = p.summoner_id
		LEFT JOIN summoner_ranks sr ON sr.summoner_id = s.id AND sr.queue_type = ?
		WHERE p.champion_id = ? AND m.patch = ? AND m.status = ?
		  AND p.rune_loadout_id IS NOT NULL`
	args := []any{constants.RankedSoloQueueType, championID, patch, domain.FetchStatusFetched}
	query, args = appendParticipantFilters(query, args, rankTier, region, role)

	query += `
		GROUP BY p.rune_loadout_id
		HAVING COUNT(*) >= ?
		ORDER BY wins DESC, games DESC, p.rune_loadout_id
		LIMIT ?`
	args = append(args, minGames, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate loadouts for champion %d: %w", championID, err)
	}
	defer rows.Close()

	var groups []LoadoutGroup
	for rows.Next() {
		var g LoadoutGroup
		if err := rows.Scan(&g.RuneLoadoutID, &g.Games, &g.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan loadout group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// LoadoutItemCounts counts how often each purchasable item and trinket shows
// up across a loadout group's games. Empty item slots are skipped.
func (r *AggregateRepository) LoadoutItemCounts(ctx context.Context, championID int, patch, rankTier, region, role, runeLoadoutID string) (map[int]int, error) {
	query := `
		SELECT p.item0, p.item1, p.item2, p.item3, p.item4, p.item5, p.trinket_item
		FROM match_participants p
		JOIN matches m ON m.id = p.match_id
		JOIN summoners s ON s.id = p.summoner_id
		LEFT JOIN summoner_ranks sr ON sr.summoner_id = s.id AND sr.queue_type = ?
		WHERE p.champion_id = ? AND m.patch = ? AND m.status = ?
		  AND p.rune_loadout_id = ?`
	args := []any{constants.RankedSoloQueueType, championID, patch, domain.FetchStatusFetched, runeLoadoutID}
	query, args = appendParticipantFilters(query, args, rankTier, region, role)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count items for loadout %s: %w", runeLoadoutID, err)
	}
	defer rows.Close()

	counts := make(map[int]int)
	for rows.Next() {
		var items [7]int
		if err := rows.Scan(&items[0], &items[1], &items[2], &items[3], &items[4], &items[5], &items[6]); err != nil {
			return nil, fmt.Errorf("failed to scan loadout items: %w", err)
		}
		for _, item := range items {
			if item > 0 {
				counts[item]++
			}
		}
	}
	return counts, rows.Err()
}

// MatchupGroups aggregates a champion's games against the enemy champion in
// the same position, suppressing matchups below minGames in the query.
func (r *AggregateRepository) MatchupGroups(ctx context.Context, championID int, patch, rankTier, region, role string, minGames int) ([]MatchupGroup, error) {
	query := `
		SELECT o.champion_id, COUNT(*) AS games, SUM(p.win) AS wins
		FROM match_participants p
		JOIN matches m ON m.id = p.match_id
		JOIN summoners s ON s.id = p.summoner_id
		LEFT JOIN summoner_ranks sr ON sr.summoner_id = s.id AND sr.queue_type = ?
		JOIN match_participants o ON o.match_id = p.match_id
		  AND o.team_id != p.team_id
		  AND o.team_position = p.team_position
		WHERE p.champion_id = ? AND m.patch = ? AND m.status = ?`
	args := []any{constants.RankedSoloQueueType, championID, patch, domain.FetchStatusFetched}
	query, args = appendParticipantFilters(query, args, rankTier, region, role)

	query += `
		GROUP BY o.champion_id
		HAVING COUNT(*) >= ?
		ORDER BY games DESC, o.champion_id`
	args = append(args, minGames)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate matchups for champion %d: %w", championID, err)
	}
	defer rows.Close()

	var groups []MatchupGroup
	for rows.Next() {
		var g MatchupGroup
		if err := rows.Scan(&g.OpponentChampionID, &g.Games, &g.Wins); err != nil {
			return nil, fmt.Errorf("failed to scan matchup group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// appendParticipantFilters narrows a participant aggregation to a rank tier,
// region or role. The tier comparison goes through the same COALESCE as the
// grouped output so "UNRANKED" selects summoners without a solo-queue rank.
func appendParticipantFilters(query string, args []any, rankTier, region, role string) (string, []any) {
	if rankTier != "" {
		query += ` AND COALESCE(NULLIF(sr.tier, ''), 'UNRANKED') = ?`
		args = append(args, rankTier)
	}
	if region != "" {
		query += ` AND s.platform_region = ?`
		args = append(args, region)
	}
	if role != "" {
		query += ` AND p.team_position = ?`
		args = append(args, role)
	}
	return query, args
}
