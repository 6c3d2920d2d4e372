package assemble

import (
	"math"
	"strings"
)

// ParseInt reads the leading optionally-signed integer of a cell, ignoring
// surrounding whitespace and anything after the digits ("12.50" is 12,
// "7 pcs" is 7). Empty cells give 0 and ok. Cells with no leading digits
// give 0 and !ok. Values beyond int64 saturate.
func ParseInt(s string) (n int64, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	i := 0
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		i++
	}

	start := i
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		d := int64(s[i] - '0')
		if n > (math.MaxInt64-d)/10 {
			n = math.MaxInt64
			continue
		}
		n = n*10 + d
	}
	if i == start {
		return 0, false
	}

	if neg {
		n = -n
	}
	return n, true
}

// addSaturating returns a+b clamped to the int64 range.
func addSaturating(a, b int64) int64 {
	switch {
	case b > 0 && a > math.MaxInt64-b:
		return math.MaxInt64
	case b < 0 && a < math.MinInt64-b:
		return math.MinInt64
	}
	return a + b
}
