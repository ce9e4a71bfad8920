package token

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// DefaultExpiresIn is used when neither the caller nor the configuration
// names an expiry.
const DefaultExpiresIn = "24h"

var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
}

// ParseDuration parses an expiry of the form <digits><unit> where unit is one
// of s, m, h or d, e.g. "90s", "15m", "24h", "7d".
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	unit, ok := durationUnits[s[len(s)-1]]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no unit", ErrInvalidDuration, s)
	}
	digits := s[:len(s)-1]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
		}
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n > math.MaxInt64/int64(unit) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidDuration, s)
	}
	return time.Duration(n) * unit, nil
}
