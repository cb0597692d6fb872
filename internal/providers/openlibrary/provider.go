package openlibrary

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://openlibrary.org/search.json"
	defaultUserAgent = "Readito/1.0"
	defaultTimeout   = 10 * time.Second
	maxDocs          = 5
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type searchResponse struct {
	Docs []doc `json:"docs"`
}

type doc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title"`
	AlternativeTitle []string `json:"alternative_title"`
	AuthorName       []string `json:"author_name"`
	FirstPublishYear int      `json:"first_publish_year"`
	CoverI           int64    `json:"cover_i"`
	Language         []string `json:"language"`
	FirstSentence    []string `json:"first_sentence"`
}

func NewProvider(cfg Config) *Provider {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Provider{client: client, endpoint: endpoint, userAgent: userAgent}
}

func (p *Provider) Name() string {
	return "openlibrary"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       p.Name(),
		Label:      "Open Library",
		MediaTypes: []domain.MediaType{domain.MediaTypeBook},
		Enabled:    true,
	}
}

func (p *Provider) Search(ctx context.Context, query string) ([]domain.MetadataCandidate, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("q", strings.TrimSpace(query))
	values.Set("limit", fmt.Sprintf("%d", maxDocs))
	uri.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	payload, err := common.ReadJSONBody(resp)
	if err != nil {
		return nil, err
	}

	var parsed searchResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("unexpected provider payload: %w", err)
	}

	candidates := make([]domain.MetadataCandidate, 0, len(parsed.Docs))
	for _, item := range parsed.Docs {
		candidate, ok := toCandidate(item)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
		if len(candidates) >= maxDocs {
			break
		}
	}
	return candidates, nil
}

func toCandidate(item doc) (domain.MetadataCandidate, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return domain.MetadataCandidate{}, false
	}

	candidate := domain.MetadataCandidate{
		Source:            "openlibrary",
		SourceID:          strings.TrimPrefix(strings.TrimSpace(item.Key), "/works/"),
		MediaType:         domain.MediaTypeBook,
		Title:             title,
		TitleAlternatives: item.AlternativeTitle,
		Year:              item.FirstPublishYear,
	}
	if len(item.AuthorName) > 0 {
		candidate.Author = strings.TrimSpace(item.AuthorName[0])
	}
	if len(item.Language) > 0 {
		candidate.Language = strings.TrimSpace(item.Language[0])
	}
	if len(item.FirstSentence) > 0 {
		candidate.Description = strings.TrimSpace(item.FirstSentence[0])
	}
	if item.CoverI > 0 {
		candidate.CoverURL = fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-L.jpg", item.CoverI)
	}
	return candidate, true
}
