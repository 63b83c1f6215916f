package staging

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/aristath/sharpline/internal/model"
)

// TimingBucketFor classifies hoursBeforeGame per the GLOSSARY's "Timing
// bucket" categories. Boundaries run from widest to narrowest window so
// the first matching case wins.
func TimingBucketFor(hoursBeforeGame float64) model.TimingBucket {
	switch {
	case hoursBeforeGame >= 48:
		return model.TimingOpening
	case hoursBeforeGame >= 24:
		return model.TimingEarly
	case hoursBeforeGame >= 6:
		return model.TimingSameDay
	case hoursBeforeGame >= 2:
		return model.TimingLate
	case hoursBeforeGame >= 1:
		return model.TimingClosing2H
	case hoursBeforeGame >= (5.0 / 60.0):
		return model.TimingClosingHour
	default:
		return model.TimingUltraLate
	}
}

// HoursBeforeGame computes the number of hours between collectedAt and
// gameStart. The result is zero or negative when collectedAt is at or
// after gameStart; the Transformer rejects such rows as post_game_start.
func HoursBeforeGame(collectedAt, gameStart time.Time) float64 {
	return gameStart.Sub(collectedAt).Hours()
}

// ParseMoneylineSplit decodes the {"home":..,"away":..} JSON split_value
// convention used by moneyline observations. Returns ok=false if the
// value does not parse, which the caller turns into a StagingReject.
func ParseMoneylineSplit(raw string) (home, away int, ok bool) {
	if raw == "" {
		return 0, 0, false
	}
	var pair struct {
		Home int `json:"home"`
		Away int `json:"away"`
	}
	if err := json.Unmarshal([]byte(raw), &pair); err != nil {
		return 0, 0, false
	}
	return pair.Home, pair.Away, true
}

// ParseLineValue decodes a spread/total numeric string into a float64.
// Returns ok=false if the value is not a parseable number.
func ParseLineValue(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
