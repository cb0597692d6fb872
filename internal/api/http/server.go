package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"readito/metadataservice/internal/catalog"
	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/metadata"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type MetadataService interface {
	Resolve(ctx context.Context, request domain.ResolveRequest, providers []string) (domain.SearchOutcome, error)
	Providers() []domain.ProviderInfo
	ProviderDiagnostics() []domain.ProviderDiagnostics
}

type LibraryService interface {
	SearchBook(ctx context.Context, bookID string) (domain.BookSearchReport, error)
	ApplyCandidate(ctx context.Context, bookID string, candidate domain.MetadataCandidate, score float64, queryUsed string) (domain.BookSearchReport, error)
	History(ctx context.Context, bookID string) ([]domain.SearchRecord, error)
}

type BookCatalog interface {
	CreateBook(ctx context.Context, book domain.Book) (domain.Book, error)
	UpsertBook(ctx context.Context, book domain.Book) (domain.Book, error)
	GetBook(ctx context.Context, id string) (domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	DeleteBook(ctx context.Context, id string) error
	AddChapter(ctx context.Context, chapter domain.Chapter) (domain.Chapter, error)
	ReplaceChapters(ctx context.Context, bookID string, chapters []domain.Chapter) ([]domain.Chapter, error)
	ListChapters(ctx context.Context, bookID string) ([]domain.Chapter, error)
}

type Server struct {
	resolver MetadataService
	library  LibraryService
	catalog  BookCatalog
	logger   *slog.Logger
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithLibrary(library LibraryService) ServerOption {
	return func(s *Server) {
		s.library = library
	}
}

func WithCatalog(store BookCatalog) ServerOption {
	return func(s *Server) {
		s.catalog = store
	}
}

func NewServer(resolver MetadataService, options ...ServerOption) *Server {
	server := &Server{
		resolver: resolver,
		logger:   slog.Default(),
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/metadata/search", s.handleMetadataSearch)
	mux.HandleFunc("/metadata/providers", s.handleProviders)
	mux.HandleFunc("/metadata/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("POST /books", s.handleCreateBook)
	mux.HandleFunc("GET /books/{id}", s.handleGetBook)
	mux.HandleFunc("PUT /books/{id}", s.handleUpsertBook)
	mux.HandleFunc("DELETE /books/{id}", s.handleDeleteBook)
	mux.HandleFunc("POST /books/{id}/metadata/search", s.handleBookSearch)
	mux.HandleFunc("POST /books/{id}/metadata/apply", s.handleBookApply)
	mux.HandleFunc("GET /books/{id}/metadata/history", s.handleBookHistory)
	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "metadata-service",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	return recoveryMiddleware(s.logger, rateLimitMiddleware(50, 100, metricsMiddleware(traced)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleMetadataSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metadata/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "metadata service is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(query) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}

	providers := parseCSV(r.URL.Query().Get("providers"))
	noCache := parseOptionalBool(r.URL.Query().Get("nocache")) || parseOptionalBool(r.URL.Query().Get("noCache"))

	outcome, err := s.resolver.Resolve(r.Context(), domain.ResolveRequest{
		Title:   query,
		Author:  strings.TrimSpace(r.URL.Query().Get("author")),
		Path:    strings.TrimSpace(r.URL.Query().Get("path")),
		NoCache: noCache,
	}, providers)
	if err != nil {
		s.logger.Warn("metadata search failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("providers", providers),
			slog.String("error", err.Error()),
		)
		switch {
		case errors.Is(err, metadata.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, metadata.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, metadata.ErrNoProviders):
			writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "metadata search failed")
		}
		return
	}

	failedProviders := make([]string, 0, len(outcome.Providers))
	for _, providerStatus := range outcome.Providers {
		if !providerStatus.OK {
			failedProviders = append(failedProviders, providerStatus.Name)
		}
	}
	s.logger.Info("metadata search completed",
		slog.String("query", truncate(query, 80)),
		slog.Any("providers", providers),
		slog.Int("candidates", len(outcome.RankedCandidates)),
		slog.Int64("elapsedMs", outcome.ElapsedMS),
		slog.Int("failedProviders", len(failedProviders)),
	)
	if len(failedProviders) > 0 {
		s.logger.Warn("metadata providers partially failed",
			slog.String("query", truncate(query, 80)),
			slog.Any("failedProviders", failedProviders),
		)
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metadata/providers" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "metadata service is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": s.resolver.Providers(),
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/metadata/providers/health" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "metadata service is not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checkedAt": time.Now().UTC(),
		"items":     s.resolver.ProviderDiagnostics(),
	})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "book catalog is not configured")
		return
	}

	var payload struct {
		Title    string `json:"title"`
		Path     string `json:"path"`
		Author   string `json:"author"`
		Chapters []struct {
			Name string `json:"name"`
			Path string `json:"path"`
		} `json:"chapters"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	title := strings.TrimSpace(payload.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}

	book, err := s.catalog.CreateBook(r.Context(), domain.Book{
		Title:  title,
		Path:   strings.TrimSpace(payload.Path),
		Author: strings.TrimSpace(payload.Author),
	})
	if err != nil {
		s.logger.Error("create book failed", slog.String("title", truncate(title, 80)), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "create book failed")
		return
	}
	chapters := make([]domain.Chapter, 0, len(payload.Chapters))
	for index, chapter := range payload.Chapters {
		name := strings.TrimSpace(chapter.Name)
		if name == "" {
			continue
		}
		stored, err := s.catalog.AddChapter(r.Context(), domain.Chapter{
			BookID: book.ID,
			Name:   name,
			Path:   strings.TrimSpace(chapter.Path),
			Index:  index,
		})
		if err != nil {
			s.logger.Error("add chapter failed", slog.String("bookId", book.ID), slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "internal_error", "create book failed")
			return
		}
		chapters = append(chapters, stored)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"book":     book,
		"chapters": chapters,
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "book catalog is not configured")
		return
	}
	bookID := strings.TrimSpace(r.PathValue("id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book id is required")
		return
	}

	book, err := s.catalog.GetBook(r.Context(), bookID)
	if err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "load book failed")
		return
	}
	chapters, err := s.catalog.ListChapters(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "load book failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"book":     book,
		"chapters": chapters,
	})
}

func (s *Server) handleUpsertBook(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "book catalog is not configured")
		return
	}
	bookID := strings.TrimSpace(r.PathValue("id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book id is required")
		return
	}

	var payload struct {
		Title    string `json:"title"`
		Path     string `json:"path"`
		Author   string `json:"author"`
		Chapters []struct {
			Name string `json:"name"`
			Path string `json:"path"`
		} `json:"chapters"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	title := strings.TrimSpace(payload.Title)
	if title == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
		return
	}

	book, err := s.catalog.UpsertBook(r.Context(), domain.Book{
		ID:     bookID,
		Title:  title,
		Path:   strings.TrimSpace(payload.Path),
		Author: strings.TrimSpace(payload.Author),
	})
	if err != nil {
		s.logger.Error("upsert book failed", slog.String("bookId", bookID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "upsert book failed")
		return
	}

	var chapters []domain.Chapter
	if payload.Chapters != nil {
		// A chapter list in the payload replaces the stored one; an
		// absent list leaves it alone.
		replacement := make([]domain.Chapter, 0, len(payload.Chapters))
		for _, chapter := range payload.Chapters {
			name := strings.TrimSpace(chapter.Name)
			if name == "" {
				continue
			}
			replacement = append(replacement, domain.Chapter{
				Name: name,
				Path: strings.TrimSpace(chapter.Path),
			})
		}
		chapters, err = s.catalog.ReplaceChapters(r.Context(), book.ID, replacement)
	} else {
		chapters, err = s.catalog.ListChapters(r.Context(), book.ID)
	}
	if err != nil {
		s.logger.Error("upsert book chapters failed", slog.String("bookId", bookID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "upsert book failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"book":     book,
		"chapters": chapters,
	})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "book catalog is not configured")
		return
	}
	bookID := strings.TrimSpace(r.PathValue("id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book id is required")
		return
	}

	if err := s.catalog.DeleteBook(r.Context(), bookID); err != nil {
		if errors.Is(err, catalog.ErrBookNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		s.logger.Error("delete book failed", slog.String("bookId", bookID), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "delete book failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBookSearch(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "library service is not configured")
		return
	}
	bookID := strings.TrimSpace(r.PathValue("id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book id is required")
		return
	}

	report, err := s.library.SearchBook(r.Context(), bookID)
	if err != nil {
		s.writeBookError(w, r, bookID, "book metadata search failed", err)
		return
	}

	s.logger.Info("book metadata search completed",
		slog.String("bookId", bookID),
		slog.Bool("applied", report.Applied),
		slog.Bool("confirmed", report.Confirmed),
		slog.Int("candidates", len(report.Candidates)),
	)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBookApply(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "library service is not configured")
		return
	}
	bookID := strings.TrimSpace(r.PathValue("id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book id is required")
		return
	}

	var payload struct {
		Candidate domain.MetadataCandidate `json:"candidate"`
		Score     float64                  `json:"score"`
		QueryUsed string                   `json:"queryUsed"`
	}
	if err := decodeJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(payload.Candidate.Title) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "candidate title is required")
		return
	}
	if payload.Score < 0 || payload.Score > 100 {
		writeError(w, http.StatusBadRequest, "invalid_request", "score must be between 0 and 100")
		return
	}

	report, err := s.library.ApplyCandidate(r.Context(), bookID, payload.Candidate, payload.Score, strings.TrimSpace(payload.QueryUsed))
	if err != nil {
		s.writeBookError(w, r, bookID, "apply candidate failed", err)
		return
	}

	s.logger.Info("candidate applied",
		slog.String("bookId", bookID),
		slog.String("source", payload.Candidate.Source),
		slog.Float64("score", payload.Score),
		slog.Bool("confirmed", report.Confirmed),
	)
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBookHistory(w http.ResponseWriter, r *http.Request) {
	if s.library == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "library service is not configured")
		return
	}
	bookID := strings.TrimSpace(r.PathValue("id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "book id is required")
		return
	}

	records, err := s.library.History(r.Context(), bookID)
	if err != nil {
		s.writeBookError(w, r, bookID, "load history failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookId": bookID,
		"items":  records,
	})
}

func (s *Server) writeBookError(w http.ResponseWriter, r *http.Request, bookID, what string, err error) {
	s.logger.Warn(what,
		slog.String("bookId", bookID),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	switch {
	case errors.Is(err, catalog.ErrBookNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, metadata.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, metadata.ErrUnknownProvider):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, metadata.ErrNoProviders):
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", what)
	}
}

func parseCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		value := strings.ToLower(strings.TrimSpace(part))
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func parseOptionalBool(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
