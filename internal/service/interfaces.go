package service

import (
	"context"
	"rift-analytics/internal/riot"
)

// RiotClient is the surface of the external match-data source the services
// depend on; *riot.Client satisfies it in production.
type RiotClient interface {
	GetMatch(ctx context.Context, regionalRoute, matchID string) (*riot.MatchDTO, error)
	GetMatchIDs(ctx context.Context, regionalRoute, puuid string, count, queueID int) ([]string, error)
	GetAccountByPuuid(ctx context.Context, regionalRoute, puuid string) (*riot.AccountDTO, error)
	GetSummonerByPuuid(ctx context.Context, platformRoute, puuid string) (*riot.SummonerDTO, error)
	GetLeagueEntries(ctx context.Context, platformRoute, puuid string) ([]riot.LeagueEntryDTO, error)
}
