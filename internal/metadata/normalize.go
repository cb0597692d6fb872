package metadata

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)
	// Matches edition and volume markers in several spellings, including
	// Portuguese ordinals ("2ª ed.") and both accented and folded "edição".
	editionPattern = regexp.MustCompile(`(?i)\b(?:\d+\s*(?:st|nd|rd|th|ª|a)?\s*ed(?:i[cç][aã]o|ition)?\b|revised\s+edition|ed(?:i[cç][aã]o|ition)?\s+\d+|vol(?:ume)?\s+\d+)`)
	digitsOnly     = regexp.MustCompile(`^\d+$`)
)

// accentFold strips combining marks after canonical decomposition, so
// "São" becomes "Sao" while ordinal indicators like "ª" survive intact
// for the edition pattern to consume.
var accentFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, folds accents, strips edition and volume markers,
// and reduces the remainder to space-separated alphanumeric tokens.
// The result may be empty when the input carries no real title content.
// Normalize is idempotent.
func Normalize(raw string) string {
	input := strings.ToLower(strings.TrimSpace(raw))
	if input == "" {
		return ""
	}

	if folded, _, err := transform.String(accentFold, input); err == nil {
		input = folded
	}
	// Collapse punctuation before stripping editions so the pattern sees
	// the same shape a second pass would, keeping Normalize idempotent.
	input = strings.Join(tokenPattern.FindAllString(input, -1), " ")
	input = editionPattern.ReplaceAllString(input, " ")

	tokens := tokenPattern.FindAllString(input, -1)
	return strings.Join(tokens, " ")
}

// ContainsCJK reports whether the string carries Japanese kana or CJK
// ideographs. Used to bias manga matches for titles that clearly come
// from an East Asian source.
func ContainsCJK(value string) bool {
	for _, r := range value {
		switch {
		case r >= 0x3040 && r <= 0x309F: // hiragana
			return true
		case r >= 0x30A0 && r <= 0x30FF: // katakana
			return true
		case r >= 0x4E00 && r <= 0x9FFF: // CJK unified ideographs
			return true
		}
	}
	return false
}

func isAllDigits(value string) bool {
	compact := strings.ReplaceAll(value, " ", "")
	if compact == "" {
		return false
	}
	return digitsOnly.MatchString(compact)
}
