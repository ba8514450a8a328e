package riot

type MatchDTO struct {
	Metadata MatchMetadataDTO `json:"metadata"`
	Info     MatchInfoDTO     `json:"info"`
}

type MatchMetadataDTO struct {
	MatchID      string   `json:"matchId"`
	DataVersion  string   `json:"dataVersion"`
	Participants []string `json:"participants"`
}

type MatchInfoDTO struct {
	GameCreation    int64            `json:"gameCreation"`
	GameDuration    int64            `json:"gameDuration"`
	GameVersion     string           `json:"gameVersion"`
	QueueID         int              `json:"queueId"`
	PlatformID      string           `json:"platformId"`
	EndOfGameResult string           `json:"endOfGameResult"`
	Participants    []ParticipantDTO `json:"participants"`
}

type ParticipantDTO struct {
	Puuid              string `json:"puuid"`
	TeamID             int    `json:"teamId"`
	ChampionID         int    `json:"championId"`
	TeamPosition       string `json:"teamPosition"`
	IndividualPosition string `json:"individualPosition"`
	Win                bool   `json:"win"`

	Kills                       int `json:"kills"`
	Deaths                      int `json:"deaths"`
	Assists                     int `json:"assists"`
	ChampLevel                  int `json:"champLevel"`
	GoldEarned                  int `json:"goldEarned"`
	TotalDamageDealtToChampions int `json:"totalDamageDealtToChampions"`
	VisionScore                 int `json:"visionScore"`
	TotalMinionsKilled          int `json:"totalMinionsKilled"`
	NeutralMinionsKilled        int `json:"neutralMinionsKilled"`

	Summoner1ID int `json:"summoner1Id"`
	Summoner2ID int `json:"summoner2Id"`

	Item0 int `json:"item0"`
	Item1 int `json:"item1"`
	Item2 int `json:"item2"`
	Item3 int `json:"item3"`
	Item4 int `json:"item4"`
	Item5 int `json:"item5"`
	Item6 int `json:"item6"`

	Perks PerksDTO `json:"perks"`
}

type PerksDTO struct {
	StatPerks StatPerksDTO   `json:"statPerks"`
	Styles    []PerkStyleDTO `json:"styles"`
}

type StatPerksDTO struct {
	Defense int `json:"defense"`
	Flex    int `json:"flex"`
	Offense int `json:"offense"`
}

type PerkStyleDTO struct {
	Description string                  `json:"description"` // "primaryStyle" or "subStyle"
	Style       int                     `json:"style"`
	Selections  []PerkStyleSelectionDTO `json:"selections"`
}

type PerkStyleSelectionDTO struct {
	Perk int `json:"perk"`
	Var1 int `json:"var1"`
	Var2 int `json:"var2"`
	Var3 int `json:"var3"`
}

type AccountDTO struct {
	Puuid    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type SummonerDTO struct {
	Puuid         string `json:"puuid"`
	ProfileIconID int    `json:"profileIconId"`
	RevisionDate  int64  `json:"revisionDate"`
	SummonerLevel int    `json:"summonerLevel"`
}

type LeagueEntryDTO struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}
