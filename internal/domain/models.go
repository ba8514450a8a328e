package domain

import (
	"time"
)

type FetchStatus string

const (
	FetchStatusPending                FetchStatus = "PENDING"
	FetchStatusFetched                FetchStatus = "FETCHED"
	FetchStatusTemporaryFailure       FetchStatus = "TEMPORARY_FAILURE"
	FetchStatusPermanentlyUnfetchable FetchStatus = "PERMANENTLY_UNFETCHABLE"
)

type Summoner struct {
	ID             string
	Puuid          string
	GameName       string
	TagLine        string
	PlatformRegion string
	Region         string
	ProfileIconID  int
	SummonerLevel  int
	RevisionDate   int64
	Ranks          []Rank
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Rank struct {
	SummonerID   string
	QueueType    string // "RANKED_SOLO_5x5", "RANKED_FLEX_SR"
	Tier         string // IRON .. CHALLENGER
	Division     string // I-IV
	LeaguePoints int
	Wins         int
	Losses       int
	UpdatedAt    time.Time
}

type Match struct {
	ID            string
	MatchID       string // external id, e.g. "NA1_1234567890"
	Status        FetchStatus
	LastAttemptAt *time.Time
	MatchDate     int64 // epoch ms
	Duration      int   // seconds
	Patch         string
	QueueType     string
	Participants  []MatchParticipant
	// SummonerIDs is the deduplicated match-to-summoner linkage.
	SummonerIDs []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type MatchParticipant struct {
	ID         string
	MatchID    string
	SummonerID string
	Puuid      string
	TeamID     int // 100 or 200
	ChampionID int

	TeamPosition string // TOP/JUNGLE/MIDDLE/BOTTOM/UTILITY
	Win          bool

	Kills                       int
	Deaths                      int
	Assists                     int
	ChampLevel                  int
	GoldEarned                  int
	TotalDamageDealtToChampions int
	VisionScore                 int
	TotalMinionsKilled          int
	NeutralMinionsKilled        int

	SummonerSpell1ID int
	SummonerSpell2ID int

	RuneLoadoutID string

	Item0       int
	Item1       int
	Item2       int
	Item3       int
	Item4       int
	Item5       int
	Item6       int
	TrinketItem int
}

// RuneLoadout is a canonical perk combination. Identity is the 11-field tuple
// (styles, six perks, three stat shards); the per-perk variable values are
// stored alongside but never discriminate.
type RuneLoadout struct {
	ID           string
	PrimaryStyle int
	SubStyle     int
	Perk0        int
	Perk1        int
	Perk2        int
	Perk3        int
	Perk4        int
	Perk5        int
	StatDefense  int
	StatFlex     int
	StatOffense  int
	PerkVars     [6][3]int
	CreatedAt    time.Time
}

type Patch struct {
	Version  string
	IsActive bool
}
