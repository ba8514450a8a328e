package service

import (
	"context"
	"errors"
	"fmt"
	"rift-analytics/internal/domain"
	"rift-analytics/internal/repository"
	"rift-analytics/internal/riot"
	"strings"

	"github.com/rs/zerolog"
)

// MatchTransformer maps a raw Riot match payload into the internal match
// aggregate, resolving summoners and canonical rune loadouts on the way. The
// aggregate is not persisted here; the caller owns persistence and status
// transitions.
type MatchTransformer struct {
	riot         RiotClient
	summonerRepo *repository.SummonerRepository
	runeRepo     *repository.RuneLoadoutRepository
	logger       zerolog.Logger
}

func NewMatchTransformer(riotClient RiotClient, summonerRepo *repository.SummonerRepository, runeRepo *repository.RuneLoadoutRepository, logger zerolog.Logger) *MatchTransformer {
	return &MatchTransformer{riot: riotClient, summonerRepo: summonerRepo, runeRepo: runeRepo, logger: logger}
}

// Transform fetches the match payload once and builds the full aggregate.
// riot.ErrNotFound from the match fetch passes through untouched: the source
// having no data is a valid negative result the caller turns into a status
// transition. Every other fault is retryable.
func (t *MatchTransformer) Transform(ctx context.Context, matchID, regionalRoute, platformRoute string) (*domain.Match, error) {
	dto, err := t.riot.GetMatch(ctx, regionalRoute, matchID)
	if err != nil {
		if errors.Is(err, riot.ErrNotFound) {
			t.logger.Warn().Str("match_id", matchID).Msg("riot has no data for match")
			return nil, riot.ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch match %s: %w", matchID, err)
	}

	info := dto.Info
	match := &domain.Match{
		MatchID:   dto.Metadata.MatchID,
		MatchDate: info.GameCreation,
		Duration:  int(info.GameDuration),
		Patch:     patchFromGameVersion(info.GameVersion),
		QueueType: queueLabelFor(info.QueueID),
	}

	// Participants are processed sequentially to keep summoner upsert races
	// within one match impossible.
	linked := make(map[string]struct{})
	for _, p := range info.Participants {
		summoner, err := t.resolveSummoner(ctx, p.Puuid, regionalRoute, platformRoute)
		if err != nil {
			return nil, err
		}

		// A summoner is attached to the match at most once, even when the
		// payload lists them more than once.
		if _, ok := linked[summoner.ID]; !ok {
			linked[summoner.ID] = struct{}{}
			match.SummonerIDs = append(match.SummonerIDs, summoner.ID)
		}

		position := p.TeamPosition
		if position == "" {
			position = p.IndividualPosition
		}

		loadout, err := t.resolveRuneLoadout(ctx, p.Perks)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve rune loadout for %s in %s: %w", p.Puuid, matchID, err)
		}

		match.Participants = append(match.Participants, domain.MatchParticipant{
			SummonerID:                  summoner.ID,
			Puuid:                       p.Puuid,
			TeamID:                      p.TeamID,
			ChampionID:                  p.ChampionID,
			TeamPosition:                position,
			Win:                         p.Win,
			Kills:                       p.Kills,
			Deaths:                      p.Deaths,
			Assists:                     p.Assists,
			ChampLevel:                  p.ChampLevel,
			GoldEarned:                  p.GoldEarned,
			TotalDamageDealtToChampions: p.TotalDamageDealtToChampions,
			VisionScore:                 p.VisionScore,
			TotalMinionsKilled:          p.TotalMinionsKilled,
			NeutralMinionsKilled:        p.NeutralMinionsKilled,
			SummonerSpell1ID:            p.Summoner1ID,
			SummonerSpell2ID:            p.Summoner2ID,
			RuneLoadoutID:               loadout.ID,
			Item0:                       p.Item0,
			Item1:                       p.Item1,
			Item2:                       p.Item2,
			Item3:                       p.Item3,
			Item4:                       p.Item4,
			Item5:                       p.Item5,
			Item6:                       p.Item6,
			TrinketItem:                 p.Item6,
		})
	}

	t.logger.Info().
		Str("match_id", matchID).
		Int("participants", len(match.Participants)).
		Msg("match transformed")
	return match, nil
}

// patchFromGameVersion reduces a full client version ("15.4.656.1234") to the
// major.minor patch label analytics groups by.
func patchFromGameVersion(version string) string {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// resolveSummoner returns the stored summoner for puuid, fetching and
// upserting it as a side effect on first sighting.
func (t *MatchTransformer) resolveSummoner(ctx context.Context, puuid, regionalRoute, platformRoute string) (*domain.Summoner, error) {
	summoner, err := t.summonerRepo.GetByPuuid(ctx, puuid, false)
	if err != nil {
		return nil, err
	}
	if summoner != nil {
		return summoner, nil
	}

	t.logger.Debug().Str("puuid", puuid).Msg("unknown summoner, fetching from riot")

	dto, err := t.riot.GetSummonerByPuuid(ctx, platformRoute, puuid)
	if err != nil {
		// A 404 here is not the match-not-found signal; surface it as a plain
		// retryable fault.
		return nil, fmt.Errorf("failed to fetch summoner %s: %v", puuid, err)
	}
	account, err := t.riot.GetAccountByPuuid(ctx, regionalRoute, puuid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch account %s: %v", puuid, err)
	}
	entries, err := t.riot.GetLeagueEntries(ctx, platformRoute, puuid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch league entries %s: %v", puuid, err)
	}

	summoner = &domain.Summoner{
		Puuid:          dto.Puuid,
		GameName:       account.GameName,
		TagLine:        account.TagLine,
		PlatformRegion: platformRoute,
		Region:         regionalRoute,
		ProfileIconID:  dto.ProfileIconID,
		SummonerLevel:  dto.SummonerLevel,
		RevisionDate:   dto.RevisionDate,
		Ranks:          ranksFromEntries(entries),
	}
	if err := t.summonerRepo.Upsert(ctx, summoner); err != nil {
		return nil, fmt.Errorf("failed to upsert summoner %s: %w", puuid, err)
	}
	return summoner, nil
}

func ranksFromEntries(entries []riot.LeagueEntryDTO) []domain.Rank {
	ranks := make([]domain.Rank, 0, len(entries))
	for _, e := range entries {
		ranks = append(ranks, domain.Rank{
			QueueType:    e.QueueType,
			Tier:         e.Tier,
			Division:     e.Rank,
			LeaguePoints: e.LeaguePoints,
			Wins:         e.Wins,
			Losses:       e.Losses,
		})
	}
	return ranks
}

// resolveRuneLoadout decodes the perk selection and canonicalizes it. The
// variable values ride along but never participate in identity.
func (t *MatchTransformer) resolveRuneLoadout(ctx context.Context, perks riot.PerksDTO) (*domain.RuneLoadout, error) {
	loadout := &domain.RuneLoadout{
		StatDefense: perks.StatPerks.Defense,
		StatFlex:    perks.StatPerks.Flex,
		StatOffense: perks.StatPerks.Offense,
	}

	for _, style := range perks.Styles {
		switch style.Description {
		case "primaryStyle":
			loadout.PrimaryStyle = style.Style
			for i, sel := range style.Selections {
				if i >= 4 {
					break
				}
				switch i {
				case 0:
					loadout.Perk0 = sel.Perk
				case 1:
					loadout.Perk1 = sel.Perk
				case 2:
					loadout.Perk2 = sel.Perk
				case 3:
					loadout.Perk3 = sel.Perk
				}
				loadout.PerkVars[i] = [3]int{sel.Var1, sel.Var2, sel.Var3}
			}
		case "subStyle":
			loadout.SubStyle = style.Style
			for i, sel := range style.Selections {
				if i >= 2 {
					break
				}
				switch i {
				case 0:
					loadout.Perk4 = sel.Perk
				case 1:
					loadout.Perk5 = sel.Perk
				}
				loadout.PerkVars[4+i] = [3]int{sel.Var1, sel.Var2, sel.Var3}
			}
		}
	}

	return t.runeRepo.FindOrCreate(ctx, loadout)
}
