package domain

import "time"

type MediaType string

const (
	MediaTypeBook  MediaType = "book"
	MediaTypeManga MediaType = "manga"
	MediaTypeAnime MediaType = "anime"
)

func NormalizeMediaType(raw string) MediaType {
	switch MediaType(raw) {
	case MediaTypeManga:
		return MediaTypeManga
	case MediaTypeAnime:
		return MediaTypeAnime
	default:
		return MediaTypeBook
	}
}

// MetadataCandidate is one provider's proposed identification of a book,
// manga or anime. Immutable once produced by an adapter.
type MetadataCandidate struct {
	Source            string    `json:"source"`
	SourceID          string    `json:"sourceId"`
	MediaType         MediaType `json:"mediaType"`
	Title             string    `json:"title"`
	TitleAlternatives []string  `json:"titleAlternatives,omitempty"`
	Author            string    `json:"author,omitempty"`
	Description       string    `json:"description,omitempty"`
	CoverURL          string    `json:"coverUrl,omitempty"`
	Year              int       `json:"year,omitempty"`
	Language          string    `json:"language,omitempty"`
}

// RankedCandidate pairs a candidate with its confidence score in [0,100].
// Candidates from different providers are never merged, only ranked.
type RankedCandidate struct {
	Candidate MetadataCandidate `json:"candidate"`
	Score     float64           `json:"score"`
}

// MetadataDecision records whether the top candidate should be applied
// automatically. Confirmed means the score crossed the auto-apply threshold.
type MetadataDecision struct {
	Apply     bool              `json:"apply"`
	Confirmed bool              `json:"confirmed"`
	Score     float64           `json:"score"`
	Candidate MetadataCandidate `json:"candidate"`
}

// BookMetadataState carries the per-field manual-edit flags. The resolution
// pipeline reads them but never mutates them.
type BookMetadataState struct {
	AuthorManuallyEdited      bool `json:"authorManuallyEdited"`
	DescriptionManuallyEdited bool `json:"descriptionManuallyEdited"`
	CoverManuallyEdited       bool `json:"coverManuallyEdited"`
	TitleManuallyEdited       bool `json:"titleManuallyEdited"`
}

// ResolveRequest is the input of one metadata resolution attempt.
type ResolveRequest struct {
	Title        string   `json:"title"`
	Path         string   `json:"path,omitempty"`
	Author       string   `json:"author,omitempty"`
	ChapterNames []string `json:"chapterNames,omitempty"`
	ChapterPaths []string `json:"chapterPaths,omitempty"`
	NoCache      bool     `json:"noCache,omitempty"`
}

// SearchOutcome is the terminal output of one resolution attempt. An empty
// RankedCandidates list means "no result found", which is a normal outcome.
type SearchOutcome struct {
	RankedCandidates []RankedCandidate `json:"rankedCandidates"`
	SearchQueryUsed  string            `json:"searchQueryUsed"`
	Decision         *MetadataDecision `json:"decision,omitempty"`
	Providers        []ProviderStatus  `json:"providers,omitempty"`
	Variations       int               `json:"variations"`
	ElapsedMS        int64             `json:"elapsedMs"`
}

type ProviderInfo struct {
	Name       string      `json:"name"`
	Label      string      `json:"label"`
	MediaTypes []MediaType `json:"mediaTypes"`
	Enabled    bool        `json:"enabled"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderDiagnostics struct {
	Name                string      `json:"name"`
	Label               string      `json:"label"`
	MediaTypes          []MediaType `json:"mediaTypes"`
	Enabled             bool        `json:"enabled"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	BlockedUntil        *time.Time  `json:"blockedUntil,omitempty"`
	LastError           string      `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time  `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time  `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64       `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool        `json:"lastTimeout,omitempty"`
	LastQuery           string      `json:"lastQuery,omitempty"`
	TotalRequests       int64       `json:"totalRequests,omitempty"`
	TotalFailures       int64       `json:"totalFailures,omitempty"`
	TimeoutCount        int64       `json:"timeoutCount,omitempty"`
}

// SearchRecord is one row of the append-only search provenance log.
type SearchRecord struct {
	ID         string    `json:"id"`
	BookID     string    `json:"bookId"`
	Source     string    `json:"source"`
	SourceID   string    `json:"sourceId,omitempty"`
	Score      float64   `json:"score"`
	QueryUsed  string    `json:"queryUsed"`
	Applied    bool      `json:"applied"`
	Confirmed  bool      `json:"confirmed"`
	SearchedAt time.Time `json:"searchedAt"`
}

// BookSearchReport is the response of the book-level search operation.
type BookSearchReport struct {
	Applied        bool              `json:"applied"`
	Confirmed      bool              `json:"confirmed"`
	Score          float64           `json:"score"`
	Source         string            `json:"source"`
	Title          string            `json:"title,omitempty"`
	Author         string            `json:"author,omitempty"`
	HasDescription bool              `json:"hasDescription"`
	HasCover       bool              `json:"hasCover"`
	Candidates     []RankedCandidate `json:"candidates"`
}
