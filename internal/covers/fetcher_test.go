package covers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFetchStoresCoverFile(t *testing.T) {
	payload := []byte("\x89PNG fake image bytes")
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(Config{Dir: dir, UserAgent: "Readito-test/1.0"})

	path, err := fetcher.Fetch(context.Background(), "book-123", server.URL+"/cover")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUserAgent != "Readito-test/1.0" {
		t.Fatalf("unexpected user agent %q", gotUserAgent)
	}
	if filepath.Base(path) != "book-123.png" {
		t.Fatalf("unexpected file name %q", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stored cover: %v", err)
	}
	if string(data) != string(payload) {
		t.Fatal("stored bytes do not match response body")
	}
	if _, err := os.Stat(path + ".part"); !os.IsNotExist(err) {
		t.Fatal("temp file should not survive a successful fetch")
	}
}

func TestFetchSanitizesBookID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpg"))
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(Config{Dir: dir})

	path, err := fetcher.Fetch(context.Background(), "../etc/evil id", server.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	name := filepath.Base(path)
	if strings.ContainsAny(name, "/ ") {
		t.Fatalf("file name %q not sanitized", name)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("cover written outside covers dir: %q", path)
	}
}

func TestFetchRejectsEmptyURL(t *testing.T) {
	fetcher := NewFetcher(Config{Dir: t.TempDir()})
	if _, err := fetcher.Fetch(context.Background(), "book-1", "   "); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestFetchLeavesNothingBehindOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	dir := t.TempDir()
	fetcher := NewFetcher(Config{Dir: dir})

	_, err := fetcher.Fetch(context.Background(), "book-404", server.URL)
	if err == nil {
		t.Fatal("expected error on HTTP 404")
	}

	entries, readErr := os.ReadDir(dir)
	if readErr != nil {
		t.Fatalf("read covers dir: %v", readErr)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty covers dir, found %d entries", len(entries))
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		input string
		want  string
	}{
		{"book-123", "book-123"},
		{"  a b/c  ", "a_b_c"},
		{"名前", "__"},
		{"", "cover"},
		{"...", "..."},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.input); got != tc.want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestExtensionFor(t *testing.T) {
	cases := []struct {
		contentType string
		url         string
		want        string
	}{
		{"image/png", "https://x/cover", ".png"},
		{"image/webp", "https://x/cover", ".webp"},
		{"image/gif", "https://x/cover", ".gif"},
		{"image/jpeg", "https://x/cover.png", ".jpg"},
		{"", "https://x/cover.PNG?token=abc", ".png"},
		{"", "https://x/cover.jpeg", ".jpeg"},
		{"text/html", "https://x/cover", ".jpg"},
	}
	for _, tc := range cases {
		if got := extensionFor(tc.contentType, tc.url); got != tc.want {
			t.Fatalf("extensionFor(%q, %q) = %q, want %q", tc.contentType, tc.url, got, tc.want)
		}
	}
}
