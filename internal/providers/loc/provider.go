package loc

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
	defaultEndpoint  = "https://www.loc.gov/books/"
	defaultUserAgent = "Readito/1.0"
	defaultTimeout   = 8 * time.Second
	resultCount      = 10
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
	Results []result `json:"results"`
}

type result struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	URL         string   `json:"url"`
	Contributor []string `json:"contributor"`
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
	return "loc"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       p.Name(),
		Label:      "Library of Congress",
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
	values.Set("fo", "json")
	values.Set("c", fmt.Sprintf("%d", resultCount))
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

	candidates := make([]domain.MetadataCandidate, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		candidate := domain.MetadataCandidate{
			Source:    "loc",
			SourceID:  strings.TrimSpace(item.ID),
			MediaType: domain.MediaTypeBook,
			Title:     title,
			Year:      common.YearFromDate(item.Date),
		}
		if len(item.Contributor) > 0 {
			candidate.Author = strings.TrimSpace(item.Contributor[0])
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
