package library

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"readito/metadataservice/internal/catalog"
	"readito/metadataservice/internal/domain"
)

type fakeResolver struct {
	outcome     domain.SearchOutcome
	err         error
	lastRequest domain.ResolveRequest
}

func (f *fakeResolver) Resolve(_ context.Context, request domain.ResolveRequest, _ []string) (domain.SearchOutcome, error) {
	f.lastRequest = request
	return f.outcome, f.err
}

type fakeFetcher struct {
	path   string
	err    error
	calls  int
	lastID string
	lastURL  string
}

func (f *fakeFetcher) Fetch(_ context.Context, bookID, coverURL string) (string, error) {
	f.calls++
	f.lastID = bookID
	f.lastURL = coverURL
	if f.err != nil {
		return "", f.err
	}
	return f.path, nil
}

func openTestStore(t *testing.T) *catalog.Store {
	t.Helper()
	store, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleCandidate() domain.MetadataCandidate {
	return domain.MetadataCandidate{
		Source:      "openlibrary",
		SourceID:    "OL1W",
		MediaType:   domain.MediaTypeBook,
		Title:       "The Hobbit",
		Author:      "J.R.R. Tolkien",
		Description: "A hole in the ground.",
		CoverURL:    "https://covers.example/hobbit.jpg",
		Year:        1937,
		Language:    "eng",
	}
}

func TestSearchBookAppliesConfidentDecision(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "the hobbit", Path: "/library/hobbit"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	if _, err := store.AddChapter(ctx, domain.Chapter{BookID: book.ID, Name: "An Unexpected Party", Path: "/library/hobbit/ch1", Index: 0}); err != nil {
		t.Fatalf("AddChapter: %v", err)
	}

	candidate := sampleCandidate()
	resolver := &fakeResolver{outcome: domain.SearchOutcome{
		RankedCandidates: []domain.RankedCandidate{{Candidate: candidate, Score: 87.5}},
		SearchQueryUsed:  "the hobbit",
		Decision:         &domain.MetadataDecision{Apply: true, Confirmed: true, Score: 87.5, Candidate: candidate},
	}}
	fetcher := &fakeFetcher{path: "/data/covers/" + book.ID + ".jpg"}
	service := NewService(store, resolver, fetcher, nil)

	report, err := service.SearchBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("SearchBook: %v", err)
	}
	if !report.Applied || !report.Confirmed || report.Score != 87.5 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Source != "openlibrary" || !report.HasCover || !report.HasDescription {
		t.Fatalf("unexpected report details: %+v", report)
	}
	if len(report.Candidates) != 1 {
		t.Fatalf("expected ranked candidates in report, got %d", len(report.Candidates))
	}

	if resolver.lastRequest.Title != "the hobbit" || resolver.lastRequest.Path != "/library/hobbit" {
		t.Fatalf("unexpected resolve request: %+v", resolver.lastRequest)
	}
	if len(resolver.lastRequest.ChapterNames) != 1 || resolver.lastRequest.ChapterNames[0] != "An Unexpected Party" {
		t.Fatalf("chapter names not forwarded: %+v", resolver.lastRequest.ChapterNames)
	}
	if len(resolver.lastRequest.ChapterPaths) != 1 {
		t.Fatalf("chapter paths not forwarded: %+v", resolver.lastRequest.ChapterPaths)
	}

	updated, err := store.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if updated.Title != "The Hobbit" || updated.Author != "J.R.R. Tolkien" || updated.Year != 1937 {
		t.Fatalf("book fields not applied: %+v", updated)
	}
	if updated.CoverPath != fetcher.path || updated.Language != "eng" {
		t.Fatalf("cover or language not applied: %+v", updated)
	}
	if fetcher.calls != 1 || fetcher.lastID != book.ID || fetcher.lastURL != candidate.CoverURL {
		t.Fatalf("unexpected fetcher usage: %+v", fetcher)
	}

	records, err := store.ListSearchRecords(ctx, book.ID)
	if err != nil {
		t.Fatalf("ListSearchRecords: %v", err)
	}
	if len(records) != 1 || !records[0].Applied || !records[0].Confirmed {
		t.Fatalf("unexpected provenance log: %+v", records)
	}
	if records[0].QueryUsed != "the hobbit" || records[0].SourceID != "OL1W" {
		t.Fatalf("unexpected record fields: %+v", records[0])
	}
}

func TestSearchBookNeedsReviewLogsTopCandidate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "ambiguous"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	first := sampleCandidate()
	second := sampleCandidate()
	second.Source = "loc"
	second.SourceID = "loc-2"
	resolver := &fakeResolver{outcome: domain.SearchOutcome{
		RankedCandidates: []domain.RankedCandidate{
			{Candidate: first, Score: 61},
			{Candidate: second, Score: 58},
		},
		SearchQueryUsed: "ambiguous",
	}}
	service := NewService(store, resolver, &fakeFetcher{}, nil)

	report, err := service.SearchBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("SearchBook: %v", err)
	}
	if report.Applied || report.Confirmed {
		t.Fatalf("nothing should be applied without a decision: %+v", report)
	}
	if report.Score != 61 || report.Source != "openlibrary" {
		t.Fatalf("expected top candidate summary, got %+v", report)
	}
	if len(report.Candidates) != 2 {
		t.Fatalf("expected candidate list, got %d", len(report.Candidates))
	}

	unchanged, err := store.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if unchanged.Title != "ambiguous" || unchanged.Author != "" {
		t.Fatalf("book should be untouched: %+v", unchanged)
	}

	records, err := store.ListSearchRecords(ctx, book.ID)
	if err != nil {
		t.Fatalf("ListSearchRecords: %v", err)
	}
	if len(records) != 1 || records[0].Applied || records[0].Confirmed {
		t.Fatalf("expected one unapplied record, got %+v", records)
	}
	if records[0].Score != 61 {
		t.Fatalf("record should carry the top score, got %v", records[0].Score)
	}
}

func TestSearchBookNoResult(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "Volume 1"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	resolver := &fakeResolver{outcome: domain.SearchOutcome{SearchQueryUsed: "volume 1"}}
	service := NewService(store, resolver, &fakeFetcher{}, nil)

	report, err := service.SearchBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("SearchBook: %v", err)
	}
	if report.Applied || len(report.Candidates) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}

	records, err := store.ListSearchRecords(ctx, book.ID)
	if err != nil {
		t.Fatalf("ListSearchRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("no-result runs should not be logged, got %+v", records)
	}
}

func TestSearchBookNotFound(t *testing.T) {
	store := openTestStore(t)
	service := NewService(store, &fakeResolver{}, &fakeFetcher{}, nil)

	_, err := service.SearchBook(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestSearchBookPropagatesResolverError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "Dune"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	wantErr := errors.New("all providers down")
	service := NewService(store, &fakeResolver{err: wantErr}, &fakeFetcher{}, nil)

	_, err = service.SearchBook(ctx, book.ID)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestApplyCandidateRespectsManualEdits(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "My Title", Author: "My Author"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	err = store.SetFlags(ctx, book.ID, domain.BookMetadataState{
		TitleManuallyEdited:  true,
		AuthorManuallyEdited: true,
		CoverManuallyEdited:  true,
	})
	if err != nil {
		t.Fatalf("SetFlags: %v", err)
	}

	fetcher := &fakeFetcher{path: "/data/covers/x.jpg"}
	service := NewService(store, &fakeResolver{}, fetcher, nil)

	report, err := service.ApplyCandidate(ctx, book.ID, sampleCandidate(), 90, "hobbit")
	if err != nil {
		t.Fatalf("ApplyCandidate: %v", err)
	}
	if !report.Applied || !report.Confirmed {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.HasCover {
		t.Fatal("cover must not be replaced when manually edited")
	}
	if fetcher.calls != 0 {
		t.Fatalf("fetcher should not run for a manually edited cover, got %d calls", fetcher.calls)
	}

	got, err := store.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.Title != "My Title" || got.Author != "My Author" {
		t.Fatalf("manual edits were clobbered: %+v", got)
	}
	if got.Description != "A hole in the ground." || got.Year != 1937 {
		t.Fatalf("unflagged fields should still apply: %+v", got)
	}
}

func TestApplyCandidateCoverFailureIsNotFatal(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "the hobbit"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}

	fetcher := &fakeFetcher{err: errors.New("cover HTTP 502")}
	service := NewService(store, &fakeResolver{}, fetcher, nil)

	report, err := service.ApplyCandidate(ctx, book.ID, sampleCandidate(), 70, "the hobbit")
	if err != nil {
		t.Fatalf("ApplyCandidate: %v", err)
	}
	if !report.Applied || report.HasCover {
		t.Fatalf("expected applied report without cover, got %+v", report)
	}

	got, err := store.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if got.CoverPath != "" {
		t.Fatalf("cover path should stay empty, got %q", got.CoverPath)
	}
	if got.Title != "The Hobbit" {
		t.Fatalf("other fields should still apply: %+v", got)
	}
}

func TestApplyCandidateConfirmationThreshold(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "x"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	service := NewService(store, &fakeResolver{}, &fakeFetcher{path: "/c.jpg"}, nil)

	low, err := service.ApplyCandidate(ctx, book.ID, sampleCandidate(), 64.9, "q")
	if err != nil {
		t.Fatalf("ApplyCandidate low: %v", err)
	}
	if low.Confirmed {
		t.Fatal("score below the auto-apply threshold must not confirm")
	}

	high, err := service.ApplyCandidate(ctx, book.ID, sampleCandidate(), 65, "q")
	if err != nil {
		t.Fatalf("ApplyCandidate high: %v", err)
	}
	if !high.Confirmed {
		t.Fatal("score at the auto-apply threshold must confirm")
	}
}

func TestHistoryRequiresExistingBook(t *testing.T) {
	store := openTestStore(t)
	service := NewService(store, &fakeResolver{}, &fakeFetcher{}, nil)

	_, err := service.History(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrBookNotFound) {
		t.Fatalf("expected ErrBookNotFound, got %v", err)
	}
}

func TestHistoryReturnsRecords(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	book, err := store.CreateBook(ctx, domain.Book{Title: "the hobbit"})
	if err != nil {
		t.Fatalf("CreateBook: %v", err)
	}
	service := NewService(store, &fakeResolver{}, &fakeFetcher{path: "/c.jpg"}, nil)

	if _, err := service.ApplyCandidate(ctx, book.ID, sampleCandidate(), 80, "the hobbit"); err != nil {
		t.Fatalf("ApplyCandidate: %v", err)
	}

	records, err := service.History(ctx, book.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(records) != 1 || records[0].Source != "openlibrary" || !records[0].Applied {
		t.Fatalf("unexpected history: %+v", records)
	}
}
