package constants

import "time"

const (
	AnalyticsCacheTTL      = 24 * time.Hour
	AnalyticsLocalCacheTTL = 1 * time.Hour
	RefreshLockTTL         = 5 * time.Minute
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// RetryBatchSize bounds one coordinator pass; it is backpressure on the
	// Riot API, not a correctness mechanism.
	RetryBatchSize    = 100
	RetryCooldown     = 10 * time.Minute
	RefreshMatchCount = 20
)

const (
	// MinSampleSize is the minimum games per (role, tier) group before a win
	// rate is reported at all.
	MinSampleSize = 100
)

const (
	RankedSoloQueueType = "RANKED_SOLO_5x5"
	RankedSoloQueueID   = 420
)

const (
	// RecentFormGames is how many of a summoner's latest games feed the
	// live-game form signal.
	RecentFormGames = 10
)
