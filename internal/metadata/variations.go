package metadata

import (
	"path/filepath"
	"strings"
)

const (
	maxKeywordCount       = 5
	maxChapterNameEntries = 15
	maxChapterPathEntries = 20
)

// acronymExpansions maps well-known series acronyms to their full titles.
// Whenever a generated variation is exactly one of these keys, the
// expansion is queued right after it.
var acronymExpansions = map[string]string{
	"got":    "game of thrones",
	"asoiaf": "a song of ice and fire",
	"lotr":   "lord of the rings",
	"hp":     "harry potter",
	"twot":   "the wheel of time",
	"wot":    "wheel of time",
	"tbate":  "the beginning after the end",
}

var leadingArticles = []string{"a ", "the ", "o ", "os ", "as ", "um ", "uma ", "an "}

var searchStopWords = map[string]struct{}{
	"a": {}, "o": {}, "e": {}, "de": {}, "da": {}, "do": {}, "das": {}, "dos": {},
	"um": {}, "uma": {}, "os": {}, "as": {}, "the": {}, "an": {}, "of": {}, "and": {},
	"or": {}, "in": {}, "on": {}, "to": {}, "for": {}, "no": {}, "na": {}, "em": {},
	"com": {}, "por": {}, "para": {},
}

// VariationInput carries everything known about the book on disk that can
// seed a search query.
type VariationInput struct {
	Title        string
	Author       string
	Path         string
	ChapterNames []string
	ChapterPaths []string
}

type variationSet struct {
	seen  map[string]struct{}
	items []string
}

func newVariationSet() *variationSet {
	return &variationSet{seen: make(map[string]struct{})}
}

// push appends a variation if it has not been seen yet, preserving order.
// A variation that is itself a known acronym drags its expansion along.
func (v *variationSet) push(value string) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return
	}
	if _, exists := v.seen[trimmed]; !exists {
		v.seen[trimmed] = struct{}{}
		v.items = append(v.items, trimmed)
	}
	if expansion, ok := acronymExpansions[trimmed]; ok {
		if _, exists := v.seen[expansion]; !exists {
			v.seen[expansion] = struct{}{}
			v.items = append(v.items, expansion)
		}
	}
}

// BuildVariations produces the ordered list of search queries for one book.
// Earlier entries are higher-confidence: the full normalized title comes
// first and the author-qualified query last. Duplicates are dropped on
// first sight so downstream rounds never repeat a query.
func BuildVariations(input VariationInput) []string {
	set := newVariationSet()

	normalized := Normalize(input.Title)
	set.push(normalized)

	set.push(stripLeadingArticle(normalized))

	if segment := segmentBeforeSeparator(input.Title); segment != "" {
		set.push(Normalize(segment))
	}

	set.push(keywordReduce(normalized))

	for _, variation := range pathVariations(input.Path) {
		set.push(variation)
	}

	pushChapterNameVariations(set, input.ChapterNames)
	pushChapterPathVariations(set, input.ChapterPaths)

	if author := Normalize(input.Author); author != "" && normalized != "" {
		set.push(normalized + " " + author)
	}

	return set.items
}

func stripLeadingArticle(normalized string) string {
	for _, article := range leadingArticles {
		if strings.HasPrefix(normalized, article) {
			return strings.TrimSpace(strings.TrimPrefix(normalized, article))
		}
	}
	return ""
}

// segmentBeforeSeparator returns the part of the raw title before the first
// colon or dash, which usually names the series without subtitle noise.
func segmentBeforeSeparator(raw string) string {
	cut := len(raw)
	for _, sep := range []string{":", " - ", "–", "—"} {
		if idx := strings.Index(raw, sep); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	if cut == len(raw) {
		return ""
	}
	return strings.TrimSpace(raw[:cut])
}

// keywordReduce keeps the first meaningful words of a normalized string,
// dropping stop words in both English and Portuguese.
func keywordReduce(normalized string) string {
	if normalized == "" {
		return ""
	}
	kept := make([]string, 0, maxKeywordCount)
	for _, word := range strings.Fields(normalized) {
		if _, stop := searchStopWords[word]; stop {
			continue
		}
		kept = append(kept, word)
		if len(kept) == maxKeywordCount {
			break
		}
	}
	return strings.Join(kept, " ")
}

func pathVariations(path string) []string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil
	}

	stem := fileStem(filepath.Base(trimmed))
	normalizedStem := Normalize(stem)

	out := make([]string, 0, 5)
	out = append(out, normalizedStem)

	if segment := segmentBeforeSeparator(stem); segment != "" {
		out = append(out, Normalize(segment))
	}
	out = append(out, keywordReduce(normalizedStem))

	parent := filepath.Base(filepath.Dir(trimmed))
	if parent != "." && parent != string(filepath.Separator) {
		normalizedParent := Normalize(parent)
		out = append(out, normalizedParent)
		if normalizedParent != "" && normalizedStem != "" && normalizedParent != normalizedStem {
			out = append(out, normalizedParent+" "+normalizedStem)
		}
	}
	return out
}

// pushChapterNameVariations mines the first chapter names for series
// candidates. Only the leading entries are consumed; a long chapter list
// adds nothing past the cap.
func pushChapterNameVariations(set *variationSet, names []string) {
	if len(names) > maxChapterNameEntries {
		names = names[:maxChapterNameEntries]
	}
	for _, name := range names {
		normalized := Normalize(name)
		if len(normalized) < 3 {
			continue
		}

		base := name
		if idx := strings.Index(name, " - "); idx > 0 {
			base = name[:idx]
		}
		if reduced := keywordReduce(Normalize(base)); len(reduced) >= 4 && !isAllDigits(reduced) {
			set.push(reduced)
		}

		for _, segment := range splitChapterSegments(name) {
			normalizedSegment := Normalize(segment)
			if len(normalizedSegment) < 4 || isAllDigits(normalizedSegment) {
				continue
			}
			set.push(normalizedSegment)
		}
	}
}

func pushChapterPathVariations(set *variationSet, paths []string) {
	if len(paths) > maxChapterPathEntries {
		paths = paths[:maxChapterPathEntries]
	}
	for _, path := range paths {
		for _, component := range strings.FieldsFunc(path, func(r rune) bool {
			return r == '/' || r == '\\'
		}) {
			stem := fileStem(component)
			candidates := []string{stem}
			if idx := strings.Index(stem, " - "); idx > 0 {
				candidates = append([]string{stem[:idx]}, candidates...)
			}
			for _, candidate := range candidates {
				normalized := Normalize(candidate)
				if len(normalized) < 4 || isAllDigits(normalized) {
					continue
				}
				set.push(normalized)
			}
		}
	}
}

// splitChapterSegments breaks a chapter name on the separators scan tools
// commonly use between series, chapter number, and chapter title. A name
// with no separator yields itself as the only segment.
func splitChapterSegments(name string) []string {
	segments := make([]string, 0, 4)
	for _, part := range strings.Split(name, " - ") {
		for _, sub := range strings.Split(part, " _ ") {
			sub = strings.TrimSpace(sub)
			if len(sub) >= 3 {
				segments = append(segments, sub)
			}
		}
	}
	return segments
}

func fileStem(base string) string {
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext)
}
