package jikan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"readito/metadataservice/internal/domain"
)

func TestSearchMapsEntriesToCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "one piece" {
			t.Fatalf("unexpected query %q", got)
		}
		if got := r.URL.Query().Get("limit"); got != "5" {
			t.Fatalf("unexpected limit %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{
			"mal_id":13,
			"title":"One Piece",
			"title_english":"One Piece",
			"title_japanese":"ワンピース",
			"synopsis":"Gol D. Roger was known as the Pirate King.",
			"images":{"jpg":{"image_url":"https://cdn.mal/small.jpg","large_image_url":"https://cdn.mal/large.jpg"}},
			"published":{"from":"1997-07-22T00:00:00+00:00"},
			"authors":[{"name":"Oda, Eiichiro"}]
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
	if got.Source != "jikan" || got.SourceID != "13" {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.MediaType != domain.MediaTypeManga {
		t.Fatalf("expected manga, got %q", got.MediaType)
	}
	if got.Year != 1997 {
		t.Fatalf("expected year from published.from, got %d", got.Year)
	}
	if got.CoverURL != "https://cdn.mal/large.jpg" {
		t.Fatalf("expected large image preferred, got %q", got.CoverURL)
	}
	if got.Author != "Oda, Eiichiro" {
		t.Fatalf("unexpected author %q", got.Author)
	}
	if len(got.TitleAlternatives) != 1 || got.TitleAlternatives[0] != "ワンピース" {
		t.Fatalf("unexpected alternatives %+v", got.TitleAlternatives)
	}
}

func TestSearchFallsBackToSmallImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{
			"mal_id":1,
			"title":"Berserk",
			"images":{"jpg":{"image_url":"https://cdn.mal/small.jpg"}}
		}]}`))
	}))
	defer server.Close()

	provider := NewProvider(Config{Endpoint: server.URL})
	candidates, err := provider.Search(context.Background(), "berserk")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if candidates[0].CoverURL != "https://cdn.mal/small.jpg" {
		t.Fatalf("expected small image fallback, got %q", candidates[0].CoverURL)
	}
}

func TestRateLimitDeclaresOneRequestPerSecond(t *testing.T) {
	provider := NewProvider(Config{})
	if got := provider.RateLimit(); got != rate.Every(time.Second) {
		t.Fatalf("unexpected rate limit %v", got)
	}
}
