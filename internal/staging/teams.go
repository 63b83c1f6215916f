package staging

import (
	"strings"

	"github.com/aristath/sharpline/internal/model"
)

// canonicalTeams maps every spelling this system has observed across the
// six providers to a single canonical abbreviation. An unmatched team
// triggers an "unknown_team" StagingReject rather than being guessed at.
var canonicalTeams = map[string]string{
	"yankees": "NYY", "new york yankees": "NYY", "nyy": "NYY",
	"red sox": "BOS", "boston red sox": "BOS", "bos": "BOS",
	"blue jays": "TOR", "toronto blue jays": "TOR", "tor": "TOR",
	"rays": "TB", "tampa bay rays": "TB", "tb": "TB",
	"orioles": "BAL", "baltimore orioles": "BAL", "bal": "BAL",
	"guardians": "CLE", "cleveland guardians": "CLE", "cle": "CLE",
	"twins": "MIN", "minnesota twins": "MIN", "min": "MIN",
	"white sox": "CWS", "chicago white sox": "CWS", "cws": "CWS",
	"tigers": "DET", "detroit tigers": "DET", "det": "DET",
	"royals": "KC", "kansas city royals": "KC", "kc": "KC",
	"astros": "HOU", "houston astros": "HOU", "hou": "HOU",
	"mariners": "SEA", "seattle mariners": "SEA", "sea": "SEA",
	"rangers": "TEX", "texas rangers": "TEX", "tex": "TEX",
	"angels": "LAA", "los angeles angels": "LAA", "laa": "LAA",
	"athletics": "OAK", "oakland athletics": "OAK", "oak": "OAK",
	"braves": "ATL", "atlanta braves": "ATL", "atl": "ATL",
	"phillies": "PHI", "philadelphia phillies": "PHI", "phi": "PHI",
	"mets": "NYM", "new york mets": "NYM", "nym": "NYM",
	"marlins": "MIA", "miami marlins": "MIA", "mia": "MIA",
	"nationals": "WSH", "washington nationals": "WSH", "wsh": "WSH",
	"brewers": "MIL", "milwaukee brewers": "MIL", "mil": "MIL",
	"cubs": "CHC", "chicago cubs": "CHC", "chc": "CHC",
	"cardinals": "STL", "st. louis cardinals": "STL", "stl": "STL",
	"reds": "CIN", "cincinnati reds": "CIN", "cin": "CIN",
	"pirates": "PIT", "pittsburgh pirates": "PIT", "pit": "PIT",
	"dodgers": "LAD", "los angeles dodgers": "LAD", "lad": "LAD",
	"padres": "SD", "san diego padres": "SD", "sd": "SD",
	"giants": "SF", "san francisco giants": "SF", "sf": "SF",
	"diamondbacks": "ARI", "arizona diamondbacks": "ARI", "ari": "ARI",
	"rockies": "COL", "colorado rockies": "COL", "col": "COL",
}

// marketSizeByTeam classifies each franchise by fan-base/media size, used
// by ballpark and team-bias strategies.
var marketSizeByTeam = map[string]string{
	"NYY": "LARGE", "LAD": "LARGE", "BOS": "LARGE", "CHC": "LARGE", "NYM": "LARGE",
	"TB": "SMALL", "PIT": "SMALL", "OAK": "SMALL", "MIA": "SMALL", "KC": "SMALL", "CIN": "SMALL",
}

// CanonicalTeam resolves raw (any casing/spacing a provider uses) to a
// canonical team abbreviation, or false if unrecognized.
func CanonicalTeam(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	abbr, ok := canonicalTeams[key]
	return abbr, ok
}

// MarketSizeFor classifies a canonical team abbreviation, defaulting to
// MEDIUM for any team not explicitly listed as LARGE or SMALL.
func MarketSizeFor(canonical string) model.MarketSizeTag {
	if size, ok := marketSizeByTeam[canonical]; ok {
		return model.MarketSizeTag(size)
	}
	return model.MarketSizeMedium
}
