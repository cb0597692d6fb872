package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"readito/metadataservice/internal/domain"
)

var ErrBookNotFound = errors.New("book not found")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store manages catalog persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database and applies
// migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS books (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			path TEXT,
			author TEXT,
			description TEXT,
			cover_path TEXT,
			year INTEGER,
			language TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chapters (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			path TEXT,
			idx INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chapters_book ON chapters(book_id)`,
		`CREATE TABLE IF NOT EXISTS book_metadata_flags (
			book_id TEXT PRIMARY KEY REFERENCES books(id) ON DELETE CASCADE,
			author_manually_edited INTEGER NOT NULL DEFAULT 0,
			description_manually_edited INTEGER NOT NULL DEFAULT 0,
			cover_manually_edited INTEGER NOT NULL DEFAULT 0,
			title_manually_edited INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS metadata_search_log (
			id TEXT PRIMARY KEY,
			book_id TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
			source TEXT NOT NULL,
			source_id TEXT,
			score REAL NOT NULL,
			search_query TEXT,
			search_date TEXT NOT NULL,
			applied INTEGER NOT NULL DEFAULT 0,
			confirmed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_search_log_book ON metadata_search_log(book_id)`,
	}
	for _, statement := range statements {
		if err := s.execWithoutResultRetry(ctx, statement); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// CreateBook inserts a new book and returns it with a generated id.
func (s *Store) CreateBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	if book.ID == "" {
		book.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	book.CreatedAt = now
	book.UpdatedAt = now

	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO books (id, title, path, author, description, cover_path, year, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID,
		book.Title,
		nullableString(book.Path),
		nullableString(book.Author),
		nullableString(book.Description),
		nullableString(book.CoverPath),
		nullableInt(book.Year),
		nullableString(book.Language),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Book{}, fmt.Errorf("insert book: %w", err)
	}
	return book, nil
}

// UpsertBook inserts the book or, when a row with the same id exists,
// overwrites its fields. The original created_at survives an update.
func (s *Store) UpsertBook(ctx context.Context, book domain.Book) (domain.Book, error) {
	if book.ID == "" {
		return s.CreateBook(ctx, book)
	}
	now := time.Now().UTC()
	if book.CreatedAt.IsZero() {
		book.CreatedAt = now
	}
	book.UpdatedAt = now

	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO books (id, title, path, author, description, cover_path, year, language, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			path = excluded.path,
			author = excluded.author,
			description = excluded.description,
			cover_path = excluded.cover_path,
			year = excluded.year,
			language = excluded.language,
			updated_at = excluded.updated_at`,
		book.ID,
		book.Title,
		nullableString(book.Path),
		nullableString(book.Author),
		nullableString(book.Description),
		nullableString(book.CoverPath),
		nullableInt(book.Year),
		nullableString(book.Language),
		book.CreatedAt.Format(time.RFC3339Nano),
		book.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return domain.Book{}, fmt.Errorf("upsert book: %w", err)
	}
	return s.GetBook(ctx, book.ID)
}

// DeleteBook removes a book. Chapters, flags and search records go with it
// through the foreign-key cascade.
func (s *Store) DeleteBook(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookNotFound
	}
	return nil
}

func (s *Store) GetBook(ctx context.Context, id string) (domain.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, path, author, description, cover_path, year, language, created_at, updated_at
		 FROM books WHERE id = ?`, id)
	return scanBook(row)
}

func (s *Store) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, path, author, description, cover_path, year, language, created_at, updated_at
		 FROM books ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

// UpdateBookFields applies a partial update. Nil fields are left alone.
// Returns ErrBookNotFound when the id does not exist.
func (s *Store) UpdateBookFields(ctx context.Context, id string, update domain.BookFieldUpdate) error {
	if update.Empty() {
		return nil
	}

	assignments := make([]string, 0, 7)
	args := make([]any, 0, 8)
	appendField := func(column string, value any) {
		assignments = append(assignments, column+" = ?")
		args = append(args, value)
	}

	if update.Title != nil {
		appendField("title", *update.Title)
	}
	if update.Author != nil {
		appendField("author", nullableString(*update.Author))
	}
	if update.Description != nil {
		appendField("description", nullableString(*update.Description))
	}
	if update.CoverPath != nil {
		appendField("cover_path", nullableString(*update.CoverPath))
	}
	if update.Year != nil {
		appendField("year", nullableInt(*update.Year))
	}
	if update.Language != nil {
		appendField("language", nullableString(*update.Language))
	}
	appendField("updated_at", time.Now().UTC().Format(time.RFC3339Nano))
	args = append(args, id)

	res, err := s.execWithRetry(ctx,
		"UPDATE books SET "+strings.Join(assignments, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// GetFlags returns the manual-edit flags for a book. Missing rows read as
// all-false: nothing has been manually edited yet.
func (s *Store) GetFlags(ctx context.Context, bookID string) (domain.BookMetadataState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT author_manually_edited, description_manually_edited, cover_manually_edited, title_manually_edited
		 FROM book_metadata_flags WHERE book_id = ?`, bookID)

	var state domain.BookMetadataState
	err := row.Scan(
		&state.AuthorManuallyEdited,
		&state.DescriptionManuallyEdited,
		&state.CoverManuallyEdited,
		&state.TitleManuallyEdited,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BookMetadataState{}, nil
	}
	if err != nil {
		return domain.BookMetadataState{}, fmt.Errorf("get flags: %w", err)
	}
	return state, nil
}

// SetFlags merges the given flags into the stored row with OR semantics:
// a manual edit is sticky and later automated runs cannot clear it.
func (s *Store) SetFlags(ctx context.Context, bookID string, state domain.BookMetadataState) error {
	return s.execWithoutResultRetry(ctx,
		`INSERT INTO book_metadata_flags (book_id, author_manually_edited, description_manually_edited, cover_manually_edited, title_manually_edited)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(book_id) DO UPDATE SET
			author_manually_edited = author_manually_edited OR excluded.author_manually_edited,
			description_manually_edited = description_manually_edited OR excluded.description_manually_edited,
			cover_manually_edited = cover_manually_edited OR excluded.cover_manually_edited,
			title_manually_edited = title_manually_edited OR excluded.title_manually_edited`,
		bookID,
		state.AuthorManuallyEdited,
		state.DescriptionManuallyEdited,
		state.CoverManuallyEdited,
		state.TitleManuallyEdited,
	)
}

// AppendSearchRecord writes one provenance row for a resolution attempt.
func (s *Store) AppendSearchRecord(ctx context.Context, record domain.SearchRecord) (domain.SearchRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.SearchedAt.IsZero() {
		record.SearchedAt = time.Now().UTC()
	}

	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO metadata_search_log (id, book_id, source, source_id, score, search_query, search_date, applied, confirmed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.BookID,
		record.Source,
		nullableString(record.SourceID),
		record.Score,
		nullableString(record.QueryUsed),
		record.SearchedAt.Format(time.RFC3339Nano),
		record.Applied,
		record.Confirmed,
	)
	if err != nil {
		return domain.SearchRecord{}, fmt.Errorf("insert search record: %w", err)
	}
	return record, nil
}

// ListSearchRecords returns the provenance log for one book, newest first.
func (s *Store) ListSearchRecords(ctx context.Context, bookID string) ([]domain.SearchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, source, source_id, score, search_query, search_date, applied, confirmed
		 FROM metadata_search_log WHERE book_id = ? ORDER BY search_date DESC`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list search records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.SearchRecord, 0)
	for rows.Next() {
		var (
			record   domain.SearchRecord
			sourceID sql.NullString
			query    sql.NullString
			rawDate  string
		)
		if err := rows.Scan(&record.ID, &record.BookID, &record.Source, &sourceID, &record.Score, &query, &rawDate, &record.Applied, &record.Confirmed); err != nil {
			return nil, fmt.Errorf("scan search record: %w", err)
		}
		record.SourceID = sourceID.String
		record.QueryUsed = query.String
		if parsed, parseErr := time.Parse(time.RFC3339Nano, rawDate); parseErr == nil {
			record.SearchedAt = parsed
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// AddChapter inserts a chapter row for a book.
func (s *Store) AddChapter(ctx context.Context, chapter domain.Chapter) (domain.Chapter, error) {
	if chapter.ID == "" {
		chapter.ID = uuid.NewString()
	}
	err := s.execWithoutResultRetry(ctx,
		`INSERT INTO chapters (id, book_id, name, path, idx) VALUES (?, ?, ?, ?, ?)`,
		chapter.ID,
		chapter.BookID,
		chapter.Name,
		nullableString(chapter.Path),
		chapter.Index,
	)
	if err != nil {
		return domain.Chapter{}, fmt.Errorf("insert chapter: %w", err)
	}
	return chapter, nil
}

// ReplaceChapters swaps a book's chapter list atomically. Indexes are
// reassigned from the slice order.
func (s *Store) ReplaceChapters(ctx context.Context, bookID string, chapters []domain.Chapter) ([]domain.Chapter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin replace chapters: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chapters WHERE book_id = ?`, bookID); err != nil {
		return nil, fmt.Errorf("clear chapters: %w", err)
	}

	stored := make([]domain.Chapter, 0, len(chapters))
	for index, chapter := range chapters {
		chapter.BookID = bookID
		chapter.Index = index
		if chapter.ID == "" {
			chapter.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chapters (id, book_id, name, path, idx) VALUES (?, ?, ?, ?, ?)`,
			chapter.ID, chapter.BookID, chapter.Name, nullableString(chapter.Path), chapter.Index)
		if err != nil {
			return nil, fmt.Errorf("insert chapter: %w", err)
		}
		stored = append(stored, chapter)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit replace chapters: %w", err)
	}
	return stored, nil
}

func (s *Store) ListChapters(ctx context.Context, bookID string) ([]domain.Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, book_id, name, path, idx FROM chapters WHERE book_id = ? ORDER BY idx`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	chapters := make([]domain.Chapter, 0)
	for rows.Next() {
		var (
			chapter domain.Chapter
			path    sql.NullString
		)
		if err := rows.Scan(&chapter.ID, &chapter.BookID, &chapter.Name, &path, &chapter.Index); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapter.Path = path.String
		chapters = append(chapters, chapter)
	}
	return chapters, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (domain.Book, error) {
	var (
		book        domain.Book
		path        sql.NullString
		author      sql.NullString
		description sql.NullString
		coverPath   sql.NullString
		year        sql.NullInt64
		language    sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&book.ID, &book.Title, &path, &author, &description, &coverPath, &year, &language, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Book{}, ErrBookNotFound
	}
	if err != nil {
		return domain.Book{}, fmt.Errorf("scan book: %w", err)
	}

	book.Path = path.String
	book.Author = author.String
	book.Description = description.String
	book.CoverPath = coverPath.String
	book.Year = int(year.Int64)
	book.Language = language.String
	if parsed, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
		book.CreatedAt = parsed
	}
	if parsed, parseErr := time.Parse(time.RFC3339Nano, updatedAt); parseErr == nil {
		book.UpdatedAt = parsed
	}
	return book, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) execWithoutResultRetry(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}
