package secret

import (
	"fmt"
	"strings"
)

// DefaultTTLSeconds is used when a backend does not configure a TTL.
const DefaultTTLSeconds = 300

// Mask renders a secret safe for logging: the first and last showChars
// characters with the middle elided, or "***" when the value is too short
// for that to hide anything.
func Mask(s string, showChars ...int) string {
	show := 4
	if len(showChars) > 0 {
		show = showChars[0]
	}

	if len(s) <= show*2 {
		return "***"
	}

	return s[:show] + "..." + s[len(s)-show:]
}

// ValidateTTL clamps a configured TTL (in seconds) into [min, max],
// substituting def for zero or negative values. The variadic bounds default
// to min=1, max=86400.
func ValidateTTL(ttl int, def int, bounds ...int) int {
	minTTL, maxTTL := 1, 86400
	if len(bounds) > 0 {
		minTTL = bounds[0]
	}
	if len(bounds) > 1 {
		maxTTL = bounds[1]
	}

	if ttl <= 0 {
		ttl = def
	}
	if ttl < minTTL {
		ttl = minTTL
	}
	if ttl > maxTTL {
		ttl = maxTTL
	}

	return ttl
}

// FormatDuration renders a second count as a compact human duration,
// e.g. 45 -> "45s", 125 -> "2m 5s", 3660 -> "1h 1m".
func FormatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	var parts []string

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 && hours == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}

	return strings.Join(parts, " ")
}
