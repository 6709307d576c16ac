package runtime

import (
	"strconv"
	"strings"
)

// Pick is one purchase proposal parsed from model output.
type Pick struct {
	TrackID     string
	LicenseType string
	PriceUSD    float64
}

// ParsePicks extracts purchase proposals from free-form model output. One
// proposal per line:
//
//	TRACK: <id> | LICENSE: <type> | PRICE: <usd>
//
// The older two-field form without LICENSE is still accepted; the caller
// fills in the session's license type. Lines that do not parse are skipped,
// so surrounding prose is harmless.
func ParsePicks(text string) []Pick {
	var picks []Pick

	for _, line := range strings.Split(text, "\n") {
		pick, ok := parseLine(line)
		if ok {
			picks = append(picks, pick)
		}
	}

	return picks
}

func parseLine(line string) (Pick, bool) {
	var pick Pick
	hasTrack, hasPrice := false, false

	for _, field := range strings.Split(line, "|") {
		key, value, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "TRACK":
			pick.TrackID = value
			hasTrack = true
		case "LICENSE":
			pick.LicenseType = strings.ToLower(value)
		case "PRICE":
			price, err := strconv.ParseFloat(strings.TrimPrefix(value, "$"), 64)
			if err != nil || price < 0 {
				return Pick{}, false
			}
			pick.PriceUSD = price
			hasPrice = true
		}
	}

	return pick, hasTrack && hasPrice
}
