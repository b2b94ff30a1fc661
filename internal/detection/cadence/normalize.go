package cadence

import (
	"regexp"
	"strings"
)

// trailingRef matches transaction reference suffixes such as "*1234" or "#5678".
var trailingRef = regexp.MustCompile(`\s*[\*#]\d+$`)

var corporateSuffixes = map[string]struct{}{
	"inc":         {},
	"llc":         {},
	"ltd":         {},
	"corp":        {},
	"corporation": {},
	"company":     {},
	"co":          {},
}

// NormalizeMerchant maps a raw merchant or description string to the canonical
// grouping key: lower-cased, whitespace-collapsed, with trailing reference
// numbers and corporate suffixes removed. When stripping would leave fewer
// than three characters the trimmed original is returned instead, so short
// merchant names never collapse into an ambiguous key.
func NormalizeMerchant(raw string) string {
	trimmed := strings.TrimSpace(raw)

	key := strings.ToLower(trimmed)
	key = strings.Join(strings.Fields(key), " ")
	key = trailingRef.ReplaceAllString(key, "")

	for {
		idx := strings.LastIndexByte(key, ' ')
		if idx < 0 {
			break
		}
		if _, ok := corporateSuffixes[key[idx+1:]]; !ok {
			break
		}
		key = strings.TrimSpace(key[:idx])
	}

	key = strings.TrimSpace(key)
	if len(key) < 3 {
		return trimmed
	}
	return key
}
