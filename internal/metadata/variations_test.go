package metadata

import (
	"reflect"
	"testing"
)

func TestBuildVariationsExpandsKnownAcronyms(t *testing.T) {
	got := BuildVariations(VariationInput{Title: "GOT"})
	want := []string{"got", "game of thrones"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildVariationsStripsLeadingArticle(t *testing.T) {
	got := BuildVariations(VariationInput{Title: "The Hobbit"})
	want := []string{"the hobbit", "hobbit"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildVariationsUsesSegmentBeforeColon(t *testing.T) {
	got := BuildVariations(VariationInput{Title: "Mistborn: The Final Empire"})
	want := []string{
		"mistborn the final empire",
		"mistborn",
		"mistborn final empire",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildVariationsAppendsAuthorQualifiedQueryLast(t *testing.T) {
	got := BuildVariations(VariationInput{Title: "Dune", Author: "Frank Herbert"})
	if len(got) == 0 {
		t.Fatalf("expected variations")
	}
	last := got[len(got)-1]
	if last != "dune frank herbert" {
		t.Fatalf("expected author-qualified query last, got %q", last)
	}
	if got[0] != "dune" {
		t.Fatalf("expected normalized title first, got %q", got[0])
	}
}

func TestBuildVariationsFromFilePath(t *testing.T) {
	got := BuildVariations(VariationInput{
		Title: "Elantris v2",
		Path:  "/library/Brandon Sanderson/Elantris - v2.epub",
	})
	contains := func(value string) bool {
		for _, item := range got {
			if item == value {
				return true
			}
		}
		return false
	}
	for _, want := range []string{"elantris v2", "elantris", "brandon sanderson", "brandon sanderson elantris v2"} {
		if !contains(want) {
			t.Fatalf("expected variation %q in %v", want, got)
		}
	}
}

func TestBuildVariationsDeduplicatesPreservingOrder(t *testing.T) {
	got := BuildVariations(VariationInput{
		Title: "Dune",
		Path:  "/books/Dune/Dune.epub",
	})
	seen := make(map[string]int)
	for _, item := range got {
		seen[item]++
		if seen[item] > 1 {
			t.Fatalf("duplicate variation %q in %v", item, got)
		}
	}
	if got[0] != "dune" {
		t.Fatalf("expected %q first, got %v", "dune", got)
	}
}

func TestChapterNameVariationsSkipShortAndNumericEntries(t *testing.T) {
	set := newVariationSet()
	pushChapterNameVariations(set, []string{
		"12",
		"ab",
		"One Piece - 001 - Romance Dawn",
	})
	contains := func(value string) bool {
		for _, item := range set.items {
			if item == value {
				return true
			}
		}
		return false
	}
	if contains("12") || contains("001") {
		t.Fatalf("numeric chapter segments must be skipped, got %v", set.items)
	}
	if !contains("one piece") {
		t.Fatalf("expected series name from chapter, got %v", set.items)
	}
	if !contains("romance dawn") {
		t.Fatalf("expected chapter title segment, got %v", set.items)
	}
}

func TestChapterNameVariationsConsumeOnlyLeadingEntries(t *testing.T) {
	names := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		names = append(names, "Unique Series Name "+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	set := newVariationSet()
	pushChapterNameVariations(set, names)
	if len(set.items) != maxChapterNameEntries {
		t.Fatalf("expected %d chapter variations, got %d", maxChapterNameEntries, len(set.items))
	}
	last := set.items[len(set.items)-1]
	if last != "unique series name oa" {
		t.Fatalf("expected variation from the 15th chapter name last, got %q", last)
	}
	if _, exists := set.seen["unique series name pa"]; exists {
		t.Fatalf("chapter names past the cap must not be consumed, got %v", set.items)
	}
}

func TestChapterNameVariationsKeepSeparatorFreeNames(t *testing.T) {
	set := newVariationSet()
	pushChapterNameVariations(set, []string{"A Game of Thrones"})
	if _, exists := set.seen["a game of thrones"]; !exists {
		t.Fatalf("expected the whole separator-free name as a variation, got %v", set.items)
	}
	if _, exists := set.seen["game thrones"]; !exists {
		t.Fatalf("expected the keyword reduction too, got %v", set.items)
	}
}

func TestChapterPathVariationsUseComponentsAndCap(t *testing.T) {
	set := newVariationSet()
	pushChapterPathVariations(set, []string{
		"Berserk/Volume 01/berserk - chapter 001.cbz",
	})
	contains := func(value string) bool {
		for _, item := range set.items {
			if item == value {
				return true
			}
		}
		return false
	}
	if !contains("berserk") {
		t.Fatalf("expected series component, got %v", set.items)
	}
	if contains("volume 01") || contains("01") {
		t.Fatalf("volume-only components must be skipped, got %v", set.items)
	}
}

func TestChapterPathVariationsConsumeOnlyLeadingEntries(t *testing.T) {
	paths := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		paths = append(paths, "Unique Saga "+string(rune('a'+i%26))+string(rune('a'+i/26))+".cbz")
	}
	set := newVariationSet()
	pushChapterPathVariations(set, paths)
	if len(set.items) != maxChapterPathEntries {
		t.Fatalf("expected %d path variations, got %d", maxChapterPathEntries, len(set.items))
	}
	if _, exists := set.seen["unique saga ua"]; exists {
		t.Fatalf("paths past the cap must not be consumed, got %v", set.items)
	}
}

func TestSegmentBeforeSeparatorPicksEarliest(t *testing.T) {
	got := segmentBeforeSeparator("Series - Part: Two")
	if got != "Series" {
		t.Fatalf("expected %q, got %q", "Series", got)
	}
	if segmentBeforeSeparator("No Separator Here") != "" {
		t.Fatalf("expected empty for separator-free title")
	}
}

func TestKeywordReduceDropsStopWords(t *testing.T) {
	got := keywordReduce("a song of ice and fire e o vento")
	if got != "song ice fire vento" {
		t.Fatalf("unexpected reduction %q", got)
	}
}
