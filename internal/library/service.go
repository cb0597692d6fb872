package library

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"readito/metadataservice/internal/catalog"
	"readito/metadataservice/internal/covers"
	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/metadata"
	"readito/metadataservice/internal/metrics"
)

// Resolver is the part of the metadata service the library layer needs.
type Resolver interface {
	Resolve(ctx context.Context, request domain.ResolveRequest, providerNames []string) (domain.SearchOutcome, error)
}

// CoverFetcher downloads a candidate's cover image and returns the local path.
type CoverFetcher interface {
	Fetch(ctx context.Context, bookID, coverURL string) (string, error)
}

// Service ties resolution to the catalog: it runs searches for stored
// books, applies winning candidates without clobbering manual edits, and
// keeps the provenance log.
type Service struct {
	store    *catalog.Store
	resolver Resolver
	fetcher  CoverFetcher
	logger   *slog.Logger
}

func NewService(store *catalog.Store, resolver Resolver, fetcher CoverFetcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, resolver: resolver, fetcher: fetcher, logger: logger}
}

var _ CoverFetcher = (*covers.Fetcher)(nil)

// SearchBook resolves metadata for a stored book. When the decision says
// apply, the candidate is written through ApplyCandidate; otherwise the
// outcome is only logged so the caller can present the candidate list.
func (s *Service) SearchBook(ctx context.Context, bookID string) (domain.BookSearchReport, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return domain.BookSearchReport{}, err
	}

	chapters, err := s.store.ListChapters(ctx, bookID)
	if err != nil {
		return domain.BookSearchReport{}, err
	}
	chapterNames := make([]string, 0, len(chapters))
	chapterPaths := make([]string, 0, len(chapters))
	for _, chapter := range chapters {
		chapterNames = append(chapterNames, chapter.Name)
		if chapter.Path != "" {
			chapterPaths = append(chapterPaths, chapter.Path)
		}
	}

	outcome, err := s.resolver.Resolve(ctx, domain.ResolveRequest{
		Title:        book.Title,
		Author:       book.Author,
		Path:         book.Path,
		ChapterNames: chapterNames,
		ChapterPaths: chapterPaths,
	}, nil)
	if err != nil {
		return domain.BookSearchReport{}, err
	}

	report := domain.BookSearchReport{Candidates: outcome.RankedCandidates}

	if len(outcome.RankedCandidates) == 0 {
		metrics.ResolutionsTotal.WithLabelValues("no_result").Inc()
		s.logger.Info("metadata search found nothing",
			slog.String("bookId", bookID),
			slog.String("query", outcome.SearchQueryUsed),
		)
		return report, nil
	}

	decision := outcome.Decision
	if decision == nil || !decision.Apply {
		metrics.ResolutionsTotal.WithLabelValues("needs_review").Inc()
		top := outcome.RankedCandidates[0]
		report.Score = top.Score
		report.Source = top.Candidate.Source

		_, logErr := s.store.AppendSearchRecord(ctx, domain.SearchRecord{
			BookID:    bookID,
			Source:    top.Candidate.Source,
			SourceID:  top.Candidate.SourceID,
			Score:     top.Score,
			QueryUsed: outcome.SearchQueryUsed,
			Applied:   false,
			Confirmed: false,
		})
		if logErr != nil {
			s.logger.Warn("failed to log search record", slog.String("bookId", bookID), slog.String("error", logErr.Error()))
		}
		return report, nil
	}

	applied, err := s.applyCandidate(ctx, book, decision.Candidate, decision.Score, outcome.SearchQueryUsed, decision.Confirmed)
	if err != nil {
		return domain.BookSearchReport{}, err
	}
	metrics.ResolutionsTotal.WithLabelValues("applied").Inc()
	applied.Candidates = outcome.RankedCandidates
	return applied, nil
}

// ApplyCandidate writes one user-chosen candidate to a book. The score and
// query are recorded in the provenance log; confirmation follows the same
// threshold the automatic path uses.
func (s *Service) ApplyCandidate(ctx context.Context, bookID string, candidate domain.MetadataCandidate, score float64, queryUsed string) (domain.BookSearchReport, error) {
	book, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return domain.BookSearchReport{}, err
	}
	confirmed := score >= metadata.AutoApplyScore
	return s.applyCandidate(ctx, book, candidate, score, queryUsed, confirmed)
}

func (s *Service) applyCandidate(
	ctx context.Context,
	book domain.Book,
	candidate domain.MetadataCandidate,
	score float64,
	queryUsed string,
	confirmed bool,
) (domain.BookSearchReport, error) {
	flags, err := s.store.GetFlags(ctx, book.ID)
	if err != nil {
		return domain.BookSearchReport{}, err
	}

	update := buildFieldUpdate(candidate, flags)

	if candidate.CoverURL != "" && !flags.CoverManuallyEdited && s.fetcher != nil {
		coverPath, fetchErr := s.fetcher.Fetch(ctx, book.ID, candidate.CoverURL)
		if fetchErr != nil {
			s.logger.Warn("cover download failed",
				slog.String("bookId", book.ID),
				slog.String("url", candidate.CoverURL),
				slog.String("error", fetchErr.Error()),
			)
		} else {
			update.CoverPath = &coverPath
		}
	}

	if !update.Empty() {
		if err := s.store.UpdateBookFields(ctx, book.ID, update); err != nil {
			return domain.BookSearchReport{}, err
		}
	}

	record, err := s.store.AppendSearchRecord(ctx, domain.SearchRecord{
		BookID:     book.ID,
		Source:     candidate.Source,
		SourceID:   candidate.SourceID,
		Score:      score,
		QueryUsed:  queryUsed,
		Applied:    true,
		Confirmed:  confirmed,
		SearchedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.BookSearchReport{}, err
	}

	s.logger.Info("metadata applied",
		slog.String("bookId", book.ID),
		slog.String("source", candidate.Source),
		slog.Float64("score", score),
		slog.Bool("confirmed", confirmed),
		slog.String("recordId", record.ID),
	)

	return domain.BookSearchReport{
		Applied:        true,
		Confirmed:      confirmed,
		Score:          score,
		Source:         candidate.Source,
		Title:          candidate.Title,
		Author:         candidate.Author,
		HasDescription: candidate.Description != "",
		HasCover:       update.CoverPath != nil,
	}, nil
}

// History returns the provenance log for a book.
func (s *Service) History(ctx context.Context, bookID string) ([]domain.SearchRecord, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.store.ListSearchRecords(ctx, bookID)
}

// buildFieldUpdate maps candidate fields onto a partial update, skipping
// anything the user edited by hand and anything the candidate left empty.
// An empty candidate value never erases existing data.
func buildFieldUpdate(candidate domain.MetadataCandidate, flags domain.BookMetadataState) domain.BookFieldUpdate {
	var update domain.BookFieldUpdate

	if title := strings.TrimSpace(candidate.Title); title != "" && !flags.TitleManuallyEdited {
		update.Title = &title
	}
	if author := strings.TrimSpace(candidate.Author); author != "" && !flags.AuthorManuallyEdited {
		update.Author = &author
	}
	if description := strings.TrimSpace(candidate.Description); description != "" && !flags.DescriptionManuallyEdited {
		update.Description = &description
	}
	if candidate.Year > 0 {
		year := candidate.Year
		update.Year = &year
	}
	if language := strings.TrimSpace(candidate.Language); language != "" {
		update.Language = &language
	}
	return update
}
