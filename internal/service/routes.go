package service

import "strings"

// Platform shards mapped to their regional routing value. Read-only after
// process start.
var platformToRegional = map[string]string{
	"NA1":  "americas",
	"BR1":  "americas",
	"LA1":  "americas",
	"LA2":  "americas",
	"KR":   "asia",
	"JP1":  "asia",
	"EUW1": "europe",
	"EUN1": "europe",
	"TR1":  "europe",
	"RU":   "europe",
	"ME1":  "europe",
	"OC1":  "sea",
	"PH2":  "sea",
	"SG2":  "sea",
	"TH2":  "sea",
	"TW2":  "sea",
	"VN2":  "sea",
}

const defaultRegionalRoute = "americas"

// regionalRouteFor maps a platform shard (e.g. "NA1") to its regional routing
// value, defaulting to americas for unrecognized shards.
func regionalRouteFor(platform string) string {
	if regional, ok := platformToRegional[strings.ToUpper(platform)]; ok {
		return regional
	}
	return defaultRegionalRoute
}

// platformRouteFor normalizes a platform shard into the lowercase host form
// used in platform-scoped API paths.
func platformRouteFor(platform string) string {
	return strings.ToLower(platform)
}

// routesForMatchID derives both routing values from the platform prefix
// embedded in an external match id ("NA1_123..." → "americas", "na1").
func routesForMatchID(matchID string) (regional, platform string) {
	prefix, _, _ := strings.Cut(matchID, "_")
	prefix = strings.ToUpper(prefix)
	return regionalRouteFor(prefix), strings.ToLower(prefix)
}

// Queue ids mapped to their ranked labels. Read-only after process start.
var queueLabels = map[int]string{
	400: "NORMAL_DRAFT",
	420: "RANKED_SOLO_5x5",
	430: "NORMAL_BLIND",
	440: "RANKED_FLEX_SR",
	450: "ARAM",
	490: "QUICKPLAY",
	700: "CLASH",
}

func queueLabelFor(queueID int) string {
	if label, ok := queueLabels[queueID]; ok {
		return label
	}
	return "UNKNOWN"
}
