package core

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

var durationPattern = regexp.MustCompile(`^(\d+)([mhdy])$`)

var durationUnits = map[string]time.Duration{
	"m": time.Minute,
	"h": time.Hour,
	"d": 24 * time.Hour,
	"y": 365 * 24 * time.Hour,
}

// parseDuration reads the moderation duration grammar: a positive integer
// followed by m, h, d or y. ok is false for anything else, including
// values that overflow.
func parseDuration(arg string) (time.Duration, bool) {
	m := durationPattern.FindStringSubmatch(arg)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	unit := durationUnits[m[2]]
	if n > int64(math.MaxInt64/unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}
