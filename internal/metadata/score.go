package metadata

import (
	"strings"

	"readito/metadataservice/internal/domain"
)

// Component weights. They sum to 1.0 so the base score lands in [0,100]
// before any media-type adjustment.
const (
	weightTitle       = 0.40
	weightAuthor      = 0.25
	weightYear        = 0.15
	weightLanguage    = 0.10
	weightCover       = 0.05
	weightDescription = 0.05

	// Year and language matching is not implemented yet, so both
	// components sit at a neutral midpoint instead of punishing
	// candidates that do carry the data.
	neutralComponent = 50.0

	mangaCJKBoost       = 15.0
	animeWesternMalus   = 40.0
	substringTitleFloor = 90.0
)

// westernBookTokens are words that strongly suggest a western fantasy or
// literary title. An anime candidate for such a query is almost always a
// false positive from a title collision.
var westernBookTokens = map[string]struct{}{
	"of": {}, "and": {}, "the": {}, "song": {}, "fire": {}, "ice": {},
	"king": {}, "queen": {}, "lord": {}, "rings": {}, "chronicles": {},
	"saga": {}, "tale": {}, "tales": {}, "storm": {}, "sword": {},
	"dragon": {}, "dungeon": {},
}

// ScoreContext carries per-search signals that apply to every candidate,
// computed once before the scoring loop.
type ScoreContext struct {
	CJKHint     bool
	WesternBook bool
}

// NewScoreContext inspects the original title and path for CJK characters
// and the normalized title for western-book shape.
func NewScoreContext(title, path string) ScoreContext {
	return ScoreContext{
		CJKHint:     ContainsCJK(title) || ContainsCJK(path),
		WesternBook: looksWesternBook(Normalize(title)),
	}
}

func looksWesternBook(normalized string) bool {
	words := strings.Fields(normalized)
	if len(words) < 2 {
		return false
	}
	hit := false
	for _, word := range words {
		if strings.ContainsAny(word, "0123456789") {
			return false
		}
		if _, ok := westernBookTokens[word]; ok {
			hit = true
		}
	}
	return hit
}

// Score rates how well a candidate matches the searched title and author,
// returning a confidence in [0,100]. The weighted base is adjusted by
// media type afterwards: manga gets a boost when the search clearly comes
// from a CJK source, anime gets pushed down for western book queries.
func Score(candidate domain.MetadataCandidate, searchTitle, searchAuthor string, sctx ScoreContext) float64 {
	base := weightTitle*titleComponent(candidate, searchTitle) +
		weightAuthor*authorComponent(candidate.Author, searchAuthor) +
		weightYear*neutralComponent +
		weightLanguage*neutralComponent +
		weightCover*presenceComponent(candidate.CoverURL) +
		weightDescription*presenceComponent(candidate.Description)
	if base > 100 {
		base = 100
	}

	score := base + mediaAdjustment(candidate.MediaType, sctx)
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func mediaAdjustment(media domain.MediaType, sctx ScoreContext) float64 {
	switch media {
	case domain.MediaTypeManga:
		if sctx.CJKHint {
			return mangaCJKBoost
		}
	case domain.MediaTypeAnime:
		if sctx.CJKHint {
			return 0
		}
		if sctx.WesternBook {
			return -animeWesternMalus
		}
	}
	return 0
}

// titleComponent scores title similarity as word-set overlap across the
// candidate's main title and all of its alternatives. Substring
// containment in either direction floors the component at 90, so "One
// Piece" against "One Piece Omnibus" still ranks as a near-match.
func titleComponent(candidate domain.MetadataCandidate, searchTitle string) float64 {
	search := Normalize(searchTitle)
	if search == "" {
		return 0
	}
	searchWords := wordSet(search)

	best := 0.0
	titles := append([]string{candidate.Title}, candidate.TitleAlternatives...)
	for _, title := range titles {
		normalized := Normalize(title)
		if normalized == "" {
			continue
		}
		value := jaccard(searchWords, wordSet(normalized)) * 100
		if strings.Contains(normalized, search) || strings.Contains(search, normalized) {
			if value < substringTitleFloor {
				value = substringTitleFloor
			}
		}
		if value > best {
			best = value
		}
	}
	return best
}

func authorComponent(candidateAuthor, searchAuthor string) float64 {
	candidate := Normalize(candidateAuthor)
	search := Normalize(searchAuthor)

	switch {
	case candidate != "" && search != "":
		if strings.Contains(candidate, search) || strings.Contains(search, candidate) {
			return 100
		}
		searchWords := wordSet(search)
		overlap := 0
		for word := range searchWords {
			if _, ok := wordSet(candidate)[word]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			return 0
		}
		return float64(overlap) / float64(len(searchWords)) * 80
	case candidate != "" && search == "":
		return 50
	case candidate == "" && search != "":
		return 0
	default:
		return 50
	}
}

func presenceComponent(value string) float64 {
	if strings.TrimSpace(value) == "" {
		return 0
	}
	return 100
}

func wordSet(normalized string) map[string]struct{} {
	words := strings.Fields(normalized)
	set := make(map[string]struct{}, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

func jaccard(left, right map[string]struct{}) float64 {
	if len(left) == 0 || len(right) == 0 {
		return 0
	}
	intersection := 0
	for word := range left {
		if _, ok := right[word]; ok {
			intersection++
		}
	}
	union := len(left) + len(right) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
