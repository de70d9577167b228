package probe

import (
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// ParseNumber extracts the first integer from s. Thousands separators
// and full-width digits are accepted, so "1,250pt" and "１２" parse.
func ParseNumber(s string) (int, bool) {
	s = width.Narrow.String(s)
	var b strings.Builder
	started := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			started = true
		case r == ',' && started:
		case r == '-' && !started && b.Len() == 0:
			b.WriteRune(r)
		default:
			if started {
				return atoi(b.String())
			}
			b.Reset()
		}
	}
	if !started {
		return 0, false
	}
	return atoi(b.String())
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
