package playlist

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Common country/region prefixes to strip for display-name matching.
// Order matters: longer/more specific prefixes should come first.
var countryPrefixes = []string{
	// Double-space variants first (more specific)
	"USA  ", "World  ", "AUS  ",
	// Colon variants
	"US:", "AU:", "AUS:", "UK:", "PH:", "BR:", "CA:", "NZ:", "MX:", "ID:",
	// Pipe variants
	"US|", "UK|", "CA|",
	// Space variants
	"USA ", "UK ", "PH ", "BR ", "ID ", "MY ", "MX ", "AUS ",
	// Multi-word prefixes
	"Carib ", "World ", "Latin ", "US ",
}

// Common quality/variant suffixes to strip for display-name matching.
var qualitySuffixes = []string{
	"(HD)", "(FHD)", "(SD)", "(4K)", "(UHD)",
	"(North America)", "(EMEA)",
	" FHD", " UHD", " HD", " SD", " 4K",
}

// normalizeKey folds an identifier for tolerant comparison: NFC, lowercase,
// everything but letters and digits removed. "BBC.One-HD" and "bbconehd" agree.
func normalizeKey(s string) string {
	s = strings.ToLower(norm.NFC.String(s))

	var sb strings.Builder

	sb.Grow(len(s))

	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}

// normalizeChannelName strips country prefixes and quality suffixes before
// folding with normalizeKey, so "UK: BBC One HD" and "BBC One" agree.
func normalizeChannelName(name string) string {
	normalized := strings.TrimSpace(norm.NFC.String(name))

	// Strip country prefixes (case-insensitive).
	for _, prefix := range countryPrefixes {
		if hasPrefixFold(normalized, prefix) {
			normalized = strings.TrimSpace(normalized[len(prefix):])
		}
	}

	// Strip quality suffixes, repeatedly for names like "Ch HD (HD)".
	for {
		before := normalized

		for _, suffix := range qualitySuffixes {
			if hasSuffixFold(normalized, suffix) {
				normalized = strings.TrimSpace(normalized[:len(normalized)-len(suffix)])
			}
		}

		if normalized == before {
			break
		}
	}

	return normalizeKey(normalized)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func hasSuffixFold(s, suffix string) bool {
	return len(s) >= len(suffix) && strings.EqualFold(s[len(s)-len(suffix):], suffix)
}
