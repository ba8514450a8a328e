package service

import (
	"context"
	"fmt"
	"rift-analytics/internal/constants"
	"rift-analytics/internal/repository"
	"time"

	"github.com/rs/zerolog"
)

// Signal weights for the composite team score.
const (
	recentFormWeight   = 0.40
	championWeight     = 0.40
	rankWeight         = 0.20
	neutralWinRate     = 0.50
	defaultRankScore   = 3.0
	maxTierScore       = 10.0
	minProbabilityBase = 0.0001
)

// Thresholds for qualitative strength/weakness labels.
const (
	strongRecentForm = 0.52
	weakRecentForm   = 0.48
	strongChampions  = 0.51
	weakChampions    = 0.49
	strongRanks      = 0.55
	weakRanks        = 0.35
)

var tierScores = map[string]float64{
	"IRON":        1,
	"BRONZE":      2,
	"SILVER":      3,
	"GOLD":        4,
	"PLATINUM":    5,
	"EMERALD":     6,
	"DIAMOND":     7,
	"MASTER":      8,
	"GRANDMASTER": 9,
	"CHALLENGER":  10,
}

// LiveParticipant is one roster slot of an in-progress game as reported by
// the spectator feed.
type LiveParticipant struct {
	Puuid      string `json:"puuid"`
	RiotID     string `json:"riotId"`
	ChampionID int    `json:"championId"`
	TeamID     int    `json:"teamId"`
}

// ParticipantProfile is the per-player assessment built from stored history.
// Known is false for players we have never ingested; their signals hold
// neutral defaults and are excluded from averaging.
type ParticipantProfile struct {
	Puuid           string  `json:"puuid"`
	RiotID          string  `json:"riotId"`
	ChampionID      int     `json:"championId"`
	TeamID          int     `json:"teamId"`
	Known           bool    `json:"known"`
	RankTier        string  `json:"rankTier,omitempty"`
	RankDivision    string  `json:"rankDivision,omitempty"`
	RecentGames     int     `json:"recentGames"`
	RecentWinRate   float64 `json:"recentWinRate"`
	RecentKDA       float64 `json:"recentKda"`
	ChampionWinRate float64 `json:"championWinRate"`
	hasRank         bool
	hasForm         bool
	hasChampionRate bool
}

// TeamAssessment is the blended estimate for one side of the game.
type TeamAssessment struct {
	TeamID                  int      `json:"teamId"`
	AvgRecentWinRate        float64  `json:"avgRecentWinRate"`
	AvgChampionWinRate      float64  `json:"avgChampionWinRate"`
	AvgRankScore            float64  `json:"avgRankScore"`
	CompositeScore          float64  `json:"compositeScore"`
	EstimatedWinProbability float64  `json:"estimatedWinProbability"`
	Strengths               []string `json:"strengths"`
	Weaknesses              []string `json:"weaknesses"`
}

// LiveGameAnalysis is the full result of scoring one in-progress game.
type LiveGameAnalysis struct {
	GeneratedAt  time.Time            `json:"generatedAt"`
	Participants []ParticipantProfile `json:"participants"`
	Teams        []TeamAssessment     `json:"teams"`
}

// LiveGameService estimates win probabilities for in-progress games by
// blending each player's stored rank, recent form, and champion baseline.
type LiveGameService struct {
	summonerRepo *repository.SummonerRepository
	aggregates   *repository.AggregateRepository
	analytics    *AnalyticsService
	logger       zerolog.Logger
}

func NewLiveGameService(summonerRepo *repository.SummonerRepository, aggregates *repository.AggregateRepository, analytics *AnalyticsService, logger zerolog.Logger) *LiveGameService {
	return &LiveGameService{
		summonerRepo: summonerRepo,
		aggregates:   aggregates,
		analytics:    analytics,
		logger:       logger,
	}
}

// AnalyzeLiveGame profiles every roster slot and scores both teams. Players
// with no stored history contribute neutral defaults rather than dropping out
// of the estimate.
func (s *LiveGameService) AnalyzeLiveGame(ctx context.Context, platformRegion string, roster []LiveParticipant) (*LiveGameAnalysis, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("live game roster is empty")
	}

	// Champion baselines are memoized for the pass: two players on the same
	// champion cost one lookup.
	championRates := make(map[int]championBaseline)

	profiles := make([]ParticipantProfile, 0, len(roster))
	for _, p := range roster {
		profile, err := s.profileParticipant(ctx, p, championRates)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	teams := s.assessTeams(profiles)
	s.logger.Debug().
		Str("platform_region", platformRegion).
		Int("participants", len(profiles)).
		Int("teams", len(teams)).
		Msg("live game analyzed")

	return &LiveGameAnalysis{
		GeneratedAt:  time.Now().UTC(),
		Participants: profiles,
		Teams:        teams,
	}, nil
}

type championBaseline struct {
	winRate float64
	known   bool
}

func (s *LiveGameService) profileParticipant(ctx context.Context, p LiveParticipant, championRates map[int]championBaseline) (ParticipantProfile, error) {
	profile := ParticipantProfile{
		Puuid:           p.Puuid,
		RiotID:          p.RiotID,
		ChampionID:      p.ChampionID,
		TeamID:          p.TeamID,
		RecentWinRate:   neutralWinRate,
		ChampionWinRate: neutralWinRate,
	}

	baseline, ok := championRates[p.ChampionID]
	if !ok {
		stats, err := s.analytics.GetWinRates(ctx, p.ChampionID, WinRateFilter{})
		if err != nil {
			return ParticipantProfile{}, fmt.Errorf("failed to resolve champion %d baseline: %w", p.ChampionID, err)
		}
		if rate, known := WeightedWinRate(stats.Entries); known {
			baseline = championBaseline{winRate: rate, known: true}
		}
		championRates[p.ChampionID] = baseline
	}
	if baseline.known {
		profile.ChampionWinRate = baseline.winRate
		profile.hasChampionRate = true
	}

	summoner, err := s.summonerRepo.GetByPuuid(ctx, p.Puuid, true)
	if err != nil {
		return ParticipantProfile{}, fmt.Errorf("failed to look up summoner %s: %w", p.Puuid, err)
	}
	if summoner == nil {
		return profile, nil
	}
	profile.Known = true

	for _, rank := range summoner.Ranks {
		if rank.QueueType == constants.RankedSoloQueueType {
			profile.RankTier = rank.Tier
			profile.RankDivision = rank.Division
			profile.hasRank = true
			break
		}
	}

	form, err := s.aggregates.RecentFormFor(ctx, summoner.ID, constants.RecentFormGames)
	if err != nil {
		return ParticipantProfile{}, fmt.Errorf("failed to summarize recent form for %s: %w", p.Puuid, err)
	}
	if form.Games > 0 {
		profile.RecentGames = form.Games
		profile.RecentWinRate = form.WinRate()
		profile.RecentKDA = form.KDA()
		profile.hasForm = true
	}
	return profile, nil
}

// assessTeams averages each signal over the players that actually have it,
// falling back to neutral defaults for a team with no data at all, then
// normalizes composite scores into probabilities.
func (s *LiveGameService) assessTeams(profiles []ParticipantProfile) []TeamAssessment {
	byTeam := make(map[int][]ParticipantProfile)
	order := make([]int, 0, 2)
	for _, p := range profiles {
		if _, ok := byTeam[p.TeamID]; !ok {
			order = append(order, p.TeamID)
		}
		byTeam[p.TeamID] = append(byTeam[p.TeamID], p)
	}

	teams := make([]TeamAssessment, 0, len(order))
	var totalScore float64
	for _, teamID := range order {
		members := byTeam[teamID]
		t := TeamAssessment{
			TeamID:             teamID,
			AvgRecentWinRate:   averageSignal(members, func(p ParticipantProfile) (float64, bool) { return p.RecentWinRate, p.hasForm }, neutralWinRate),
			AvgChampionWinRate: averageSignal(members, func(p ParticipantProfile) (float64, bool) { return p.ChampionWinRate, p.hasChampionRate }, neutralWinRate),
			AvgRankScore:       averageSignal(members, rankSignal, defaultRankScore/maxTierScore),
		}
		t.CompositeScore = recentFormWeight*t.AvgRecentWinRate +
			championWeight*t.AvgChampionWinRate +
			rankWeight*t.AvgRankScore
		t.Strengths, t.Weaknesses = describeTeam(t)
		totalScore += t.CompositeScore
		teams = append(teams, t)
	}

	if totalScore < minProbabilityBase {
		totalScore = minProbabilityBase
	}
	for i := range teams {
		teams[i].EstimatedWinProbability = teams[i].CompositeScore / totalScore
	}
	return teams
}

// rankSignal maps a tier onto [0,1], Iron lowest, Challenger highest.
func rankSignal(p ParticipantProfile) (float64, bool) {
	if !p.hasRank {
		return 0, false
	}
	score, ok := tierScores[p.RankTier]
	if !ok {
		return 0, false
	}
	return score / maxTierScore, true
}

func averageSignal(members []ParticipantProfile, extract func(ParticipantProfile) (float64, bool), neutral float64) float64 {
	var sum float64
	var n int
	for _, m := range members {
		if v, ok := extract(m); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return neutral
	}
	return sum / float64(n)
}

func describeTeam(t TeamAssessment) (strengths, weaknesses []string) {
	switch {
	case t.AvgRecentWinRate >= strongRecentForm:
		strengths = append(strengths, "strong recent form")
	case t.AvgRecentWinRate <= weakRecentForm:
		weaknesses = append(weaknesses, "weak recent form")
	}
	switch {
	case t.AvgChampionWinRate >= strongChampions:
		strengths = append(strengths, "statistically favored champions")
	case t.AvgChampionWinRate <= weakChampions:
		weaknesses = append(weaknesses, "statistically weak champions")
	}
	switch {
	case t.AvgRankScore >= strongRanks:
		strengths = append(strengths, "higher average rank")
	case t.AvgRankScore <= weakRanks:
		weaknesses = append(weaknesses, "lower average rank")
	}
	return strengths, weaknesses
}
