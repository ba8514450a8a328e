package service

import (
	"context"
	"fmt"
	"rift-analytics/internal/cache"
	"rift-analytics/internal/constants"
	"rift-analytics/internal/repository"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

const (
	// topBuildCount bounds how many loadout groups a build response carries.
	topBuildCount = 3

	// coreItemThreshold separates core items from situational ones. An item
	// bought in at least this share of a build's games counts as core.
	coreItemThreshold = 0.70
)

// WinRateEntry is one (role, rank tier) statistics bucket for a champion.
type WinRateEntry struct {
	Role     string  `json:"role"`
	RankTier string  `json:"rankTier"`
	Games    int     `json:"games"`
	Wins     int     `json:"wins"`
	WinRate  float64 `json:"winRate"`
	PickRate float64 `json:"pickRate"`
}

// WinRateStats is the cached aggregation result for one champion.
type WinRateStats struct {
	ChampionID int            `json:"championId"`
	Patch      string         `json:"patch"`
	Entries    []WinRateEntry `json:"entries"`
}

// WinRateFilter narrows an aggregation to a rank tier, region or role. Empty
// fields mean no filtering on that dimension.
type WinRateFilter struct {
	RankTier string
	Region   string
	Role     string
}

// AnalyticsService serves cached champion aggregates computed from persisted
// matches. All reads go through the tiered cache; every cached entry carries
// tags so new ingests can invalidate exactly the champions they touched.
type AnalyticsService struct {
	aggregates *repository.AggregateRepository
	loadouts   *repository.RuneLoadoutRepository
	patches    *repository.PatchRepository
	cache      *cache.Cache
	logger     zerolog.Logger
}

func NewAnalyticsService(aggregates *repository.AggregateRepository, loadouts *repository.RuneLoadoutRepository, patches *repository.PatchRepository, c *cache.Cache, logger zerolog.Logger) *AnalyticsService {
	return &AnalyticsService{aggregates: aggregates, loadouts: loadouts, patches: patches, cache: c, logger: logger}
}

// GetWinRates returns per-(role, tier) win and pick rates for one champion on
// the active patch. Buckets with fewer than the minimum sample size are
// suppressed entirely rather than served with a misleading rate. When no
// patch is active the result is empty and labeled "Unknown".
func (s *AnalyticsService) GetWinRates(ctx context.Context, championID int, filter WinRateFilter) (*WinRateStats, error) {
	patch, err := s.patches.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active patch: %w", err)
	}
	if patch == "" {
		s.logger.Warn().Int("champion_id", championID).Msg("no active patch, serving empty analytics")
		return &WinRateStats{ChampionID: championID, Patch: "Unknown", Entries: []WinRateEntry{}}, nil
	}

	key := analyticsCacheKey("winrates", championID, patch, filter)
	return cache.GetOrCreate(ctx, s.cache, key, s.cacheOptions(championID, patch), func(ctx context.Context) (*WinRateStats, error) {
		entries, err := s.computeWinRates(ctx, championID, patch, filter)
		if err != nil {
			return nil, err
		}
		return &WinRateStats{ChampionID: championID, Patch: patch, Entries: entries}, nil
	})
}

func (s *AnalyticsService) computeWinRates(ctx context.Context, championID int, patch string, filter WinRateFilter) ([]WinRateEntry, error) {
	groups, err := s.aggregates.WinRateGroups(ctx, championID, patch, filter.RankTier, filter.Region, filter.Role, constants.MinSampleSize)
	if err != nil {
		return nil, err
	}
	totals, err := s.aggregates.RoleTierTotals(ctx, patch, filter.Region)
	if err != nil {
		return nil, err
	}

	entries := make([]WinRateEntry, 0, len(groups))
	for _, g := range groups {
		entry := WinRateEntry{
			Role:     g.Role,
			RankTier: g.RankTier,
			Games:    g.Games,
			Wins:     g.Wins,
			WinRate:  round4(float64(g.Wins) / float64(g.Games)),
		}
		if total := totals[g.Role+"|"+g.RankTier]; total > 0 {
			entry.PickRate = round4(float64(g.Games) / float64(total))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// RuneTree is the rune configuration attached to a recommended build.
type RuneTree struct {
	PrimaryStyle int    `json:"primaryStyle"`
	SubStyle     int    `json:"subStyle"`
	Perks        [6]int `json:"perks"`
	StatDefense  int    `json:"statDefense"`
	StatFlex     int    `json:"statFlex"`
	StatOffense  int    `json:"statOffense"`
}

// ChampionBuild is one recommended item and rune configuration.
type ChampionBuild struct {
	Items            []int    `json:"items"`
	CoreItems        []int    `json:"coreItems"`
	SituationalItems []int    `json:"situationalItems"`
	Runes            RuneTree `json:"runes"`
	Games            int      `json:"games"`
	Wins             int      `json:"wins"`
	WinRate          float64  `json:"winRate"`
}

// BuildStats is the cached build recommendation result for one champion.
type BuildStats struct {
	ChampionID int             `json:"championId"`
	Patch      string          `json:"patch"`
	CoreItems  []int           `json:"coreItems"`
	Builds     []ChampionBuild `json:"builds"`
}

// MatchupEntry is one lane-opponent statistics bucket for a champion.
type MatchupEntry struct {
	OpponentChampionID int     `json:"opponentChampionId"`
	Games              int     `json:"games"`
	Wins               int     `json:"wins"`
	WinRate            float64 `json:"winRate"`
}

// MatchupStats is the cached matchup aggregation result for one champion.
type MatchupStats struct {
	ChampionID int            `json:"championId"`
	Patch      string         `json:"patch"`
	Entries    []MatchupEntry `json:"entries"`
}

// GetChampionBuilds returns the champion's top builds on the active patch,
// one per canonical rune loadout, ordered by games times win rate. Loadouts
// below the minimum sample size are suppressed, and within each build items
// split into core and situational by appearance rate.
func (s *AnalyticsService) GetChampionBuilds(ctx context.Context, championID int, filter WinRateFilter) (*BuildStats, error) {
	patch, err := s.patches.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active patch: %w", err)
	}
	if patch == "" {
		s.logger.Warn().Int("champion_id", championID).Msg("no active patch, serving empty analytics")
		return &BuildStats{ChampionID: championID, Patch: "Unknown", CoreItems: []int{}, Builds: []ChampionBuild{}}, nil
	}

	key := analyticsCacheKey("builds", championID, patch, filter)
	return cache.GetOrCreate(ctx, s.cache, key, s.cacheOptions(championID, patch), func(ctx context.Context) (*BuildStats, error) {
		return s.computeBuilds(ctx, championID, patch, filter)
	})
}

func (s *AnalyticsService) computeBuilds(ctx context.Context, championID int, patch string, filter WinRateFilter) (*BuildStats, error) {
	groups, err := s.aggregates.LoadoutGroups(ctx, championID, patch, filter.RankTier, filter.Region, filter.Role, constants.MinSampleSize, topBuildCount)
	if err != nil {
		return nil, err
	}

	stats := &BuildStats{ChampionID: championID, Patch: patch, CoreItems: []int{}, Builds: make([]ChampionBuild, 0, len(groups))}
	globalCounts := make(map[int]int)
	var globalGames int

	for _, g := range groups {
		counts, err := s.aggregates.LoadoutItemCounts(ctx, championID, patch, filter.RankTier, filter.Region, filter.Role, g.RuneLoadoutID)
		if err != nil {
			return nil, err
		}
		loadout, err := s.loadouts.GetByID(ctx, g.RuneLoadoutID)
		if err != nil {
			return nil, err
		}
		if loadout == nil {
			s.logger.Warn().Str("rune_loadout_id", g.RuneLoadoutID).Msg("loadout row missing, skipping build")
			continue
		}

		build := ChampionBuild{
			Items:            itemsByFrequency(counts),
			CoreItems:        []int{},
			SituationalItems: []int{},
			Runes: RuneTree{
				PrimaryStyle: loadout.PrimaryStyle,
				SubStyle:     loadout.SubStyle,
				Perks:        [6]int{loadout.Perk0, loadout.Perk1, loadout.Perk2, loadout.Perk3, loadout.Perk4, loadout.Perk5},
				StatDefense:  loadout.StatDefense,
				StatFlex:     loadout.StatFlex,
				StatOffense:  loadout.StatOffense,
			},
			Games:   g.Games,
			Wins:    g.Wins,
			WinRate: round4(float64(g.Wins) / float64(g.Games)),
		}
		for _, item := range build.Items {
			if float64(counts[item])/float64(g.Games) >= coreItemThreshold {
				build.CoreItems = append(build.CoreItems, item)
			} else {
				build.SituationalItems = append(build.SituationalItems, item)
			}
			globalCounts[item] += counts[item]
		}
		globalGames += g.Games
		stats.Builds = append(stats.Builds, build)
	}

	if globalGames > 0 {
		for _, item := range itemsByFrequency(globalCounts) {
			if float64(globalCounts[item])/float64(globalGames) >= coreItemThreshold {
				stats.CoreItems = append(stats.CoreItems, item)
			}
		}
	}
	return stats, nil
}

// GetChampionMatchups returns per-lane-opponent win rates for one champion on
// the active patch, with the same sample floor as the win rate buckets.
func (s *AnalyticsService) GetChampionMatchups(ctx context.Context, championID int, filter WinRateFilter) (*MatchupStats, error) {
	patch, err := s.patches.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve active patch: %w", err)
	}
	if patch == "" {
		s.logger.Warn().Int("champion_id", championID).Msg("no active patch, serving empty analytics")
		return &MatchupStats{ChampionID: championID, Patch: "Unknown", Entries: []MatchupEntry{}}, nil
	}

	key := analyticsCacheKey("matchups", championID, patch, filter)
	return cache.GetOrCreate(ctx, s.cache, key, s.cacheOptions(championID, patch), func(ctx context.Context) (*MatchupStats, error) {
		groups, err := s.aggregates.MatchupGroups(ctx, championID, patch, filter.RankTier, filter.Region, filter.Role, constants.MinSampleSize)
		if err != nil {
			return nil, err
		}
		stats := &MatchupStats{ChampionID: championID, Patch: patch, Entries: make([]MatchupEntry, 0, len(groups))}
		for _, g := range groups {
			stats.Entries = append(stats.Entries, MatchupEntry{
				OpponentChampionID: g.OpponentChampionID,
				Games:              g.Games,
				Wins:               g.Wins,
				WinRate:            round4(float64(g.Wins) / float64(g.Games)),
			})
		}
		return stats, nil
	})
}

// itemsByFrequency orders observed items most-bought first, breaking ties on
// the lower item id so the result is stable.
func itemsByFrequency(counts map[int]int) []int {
	items := make([]int, 0, len(counts))
	for item := range counts {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		if counts[items[i]] != counts[items[j]] {
			return counts[items[i]] > counts[items[j]]
		}
		return items[i] < items[j]
	})
	return items
}

// WeightedWinRate collapses the per-bucket entries into a single games-weighted
// rate. Returns false when there is no qualifying sample at all.
func WeightedWinRate(entries []WinRateEntry) (float64, bool) {
	var games, wins int
	for _, e := range entries {
		games += e.Games
		wins += e.Wins
	}
	if games == 0 {
		return 0, false
	}
	return round4(float64(wins) / float64(games)), true
}

// InvalidateChampion drops every cached aggregate mentioning the champion,
// regardless of patch or filter combination.
func (s *AnalyticsService) InvalidateChampion(ctx context.Context, championID int) error {
	return s.cache.RemoveByTag(ctx, fmt.Sprintf("champion:%d", championID))
}

// InvalidateAll drops the entire analytics cache.
func (s *AnalyticsService) InvalidateAll(ctx context.Context) error {
	return s.cache.RemoveByTag(ctx, "analytics")
}

// ActivatePatch switches the active patch and flushes aggregates computed for
// the previous one.
func (s *AnalyticsService) ActivatePatch(ctx context.Context, version string) error {
	previous, err := s.patches.GetActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to read active patch: %w", err)
	}
	if err := s.patches.SetActive(ctx, version); err != nil {
		return fmt.Errorf("failed to activate patch %s: %w", version, err)
	}
	if previous != "" && previous != version {
		if err := s.cache.RemoveByTag(ctx, "patch:"+previous); err != nil {
			s.logger.Warn().Err(err).Str("patch", previous).Msg("failed to flush cache for previous patch")
		}
	}
	s.logger.Info().Str("patch", version).Msg("active patch switched")
	return nil
}

func (s *AnalyticsService) cacheOptions(championID int, patch string) cache.Options {
	return cache.Options{
		TTL:      constants.AnalyticsCacheTTL,
		LocalTTL: constants.AnalyticsLocalCacheTTL,
		Tags: []string{
			"analytics",
			fmt.Sprintf("champion:%d", championID),
			"patch:" + patch,
		},
	}
}

func analyticsCacheKey(kind string, championID int, patch string, filter WinRateFilter) string {
	var b strings.Builder
	fmt.Fprintf(&b, "analytics:champion:%s:%d:patch:%s", kind, championID, patch)
	if filter.RankTier != "" {
		b.WriteString(":tier:" + filter.RankTier)
	}
	if filter.Region != "" {
		b.WriteString(":region:" + filter.Region)
	}
	if filter.Role != "" {
		b.WriteString(":role:" + filter.Role)
	}
	return b.String()
}

func round4(v float64) float64 {
	return float64(int(v*10000+0.5)) / 10000
}
