package kitsu

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
	defaultEndpoint  = "https://kitsu.io/api/edge/anime"
	defaultUserAgent = "Readito/1.0"
	defaultTimeout   = 8 * time.Second
)

type Config struct {
	Endpoint  string
	UserAgent string
	Client    *http.Client
}

// Provider queries the Kitsu anime catalog. Anime candidates never make
// the final ranking, but scoring them keeps the pipeline honest about
// title collisions between books and adaptations.
type Provider struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

type searchResponse struct {
	Data []resource `json:"data"`
}

type resource struct {
	ID         string `json:"id"`
	Attributes struct {
		CanonicalTitle string            `json:"canonicalTitle"`
		Titles         map[string]string `json:"titles"`
		Synopsis       string            `json:"synopsis"`
		StartDate      string            `json:"startDate"`
		PosterImage    struct {
			Original string `json:"original"`
			Large    string `json:"large"`
		} `json:"posterImage"`
	} `json:"attributes"`
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
	return "kitsu"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       p.Name(),
		Label:      "Kitsu",
		MediaTypes: []domain.MediaType{domain.MediaTypeAnime},
		Enabled:    true,
	}
}

func (p *Provider) Search(ctx context.Context, query string) ([]domain.MetadataCandidate, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("filter[text]", strings.TrimSpace(query))
	values.Set("page[limit]", "5")
	uri.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/vnd.api+json")

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

	candidates := make([]domain.MetadataCandidate, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		title := strings.TrimSpace(item.Attributes.CanonicalTitle)
		if title == "" {
			continue
		}

		alternatives := make([]string, 0, len(item.Attributes.Titles))
		for _, alt := range item.Attributes.Titles {
			alt = strings.TrimSpace(alt)
			if alt != "" && alt != title {
				alternatives = append(alternatives, alt)
			}
		}

		candidate := domain.MetadataCandidate{
			Source:            "kitsu",
			SourceID:          strings.TrimSpace(item.ID),
			MediaType:         domain.MediaTypeAnime,
			Title:             title,
			TitleAlternatives: alternatives,
			Description:       strings.TrimSpace(item.Attributes.Synopsis),
			Year:              common.YearFromDate(item.Attributes.StartDate),
		}
		if cover := strings.TrimSpace(item.Attributes.PosterImage.Original); cover != "" {
			candidate.CoverURL = cover
		} else {
			candidate.CoverURL = strings.TrimSpace(item.Attributes.PosterImage.Large)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
