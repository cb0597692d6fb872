package kitsu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"readito/metadataservice/internal/domain"
)

func TestSearchMapsResourcesToAnimeCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("filter[text]"); got != "one piece" {
			t.Fatalf("unexpected filter %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.api+json" {
			t.Fatalf("unexpected accept header %q", got)
		}
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(`{"data":[{
			"id":"12",
			"attributes":{
				"canonicalTitle":"One Piece",
				"titles":{"en_jp":"One Piece","ja_jp":"ワンピース"},
				"synopsis":"Monkey D. Luffy sets sail.",
				"startDate":"1999-10-20",
				"posterImage":{"original":"https://media.kitsu.app/orig.jpg","large":"https://media.kitsu.app/large.jpg"}
			}
		}]}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	candidates, err := provider.Search(context.Background(), "one piece")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	got := candidates[0]
	if got.Source != "kitsu" || got.SourceID != "12" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.MediaType != domain.MediaTypeAnime {
		t.Fatalf("kitsu results must be anime, got %q", got.MediaType)
	}
	if got.Year != 1999 {
		t.Fatalf("unexpected year %d", got.Year)
	}
	if got.CoverURL != "https://media.kitsu.app/orig.jpg" {
		t.Fatalf("expected original poster preferred, got %q", got.CoverURL)
	}
	if len(got.TitleAlternatives) != 1 || got.TitleAlternatives[0] != "ワンピース" {
		t.Fatalf("unexpected alternatives %+v", got.TitleAlternatives)
	}
}

func TestSearchSkipsResourcesWithoutTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","attributes":{"canonicalTitle":"  "}}]}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	candidates, err := provider.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected empty result, got %d", len(candidates))
	}
}
