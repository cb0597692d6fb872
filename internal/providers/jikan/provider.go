package jikan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://api.jikan.moe/v4/manga"
	defaultUserAgent = "Readito/1.0"
	defaultTimeout   = 8 * time.Second
	resultLimit      = 5
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
	Data []entry `json:"data"`
}

type entry struct {
	MalID         int64  `json:"mal_id"`
	Title         string `json:"title"`
	TitleEnglish  string `json:"title_english"`
	TitleJapanese string `json:"title_japanese"`
	Synopsis      string `json:"synopsis"`
	Images        struct {
		JPG struct {
			ImageURL      string `json:"image_url"`
			LargeImageURL string `json:"large_image_url"`
		} `json:"jpg"`
	} `json:"images"`
	Published struct {
		From string `json:"from"`
	} `json:"published"`
	Authors []struct {
		Name string `json:"name"`
	} `json:"authors"`
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
	return "jikan"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       p.Name(),
		Label:      "Jikan (MyAnimeList)",
		MediaTypes: []domain.MediaType{domain.MediaTypeManga},
		Enabled:    true,
	}
}

// RateLimit matches the public Jikan API budget of one request per second
// sustained.
func (p *Provider) RateLimit() rate.Limit {
	return rate.Every(time.Second)
}

func (p *Provider) Search(ctx context.Context, query string) ([]domain.MetadataCandidate, error) {
	uri, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	values := uri.Query()
	values.Set("q", strings.TrimSpace(query))
	values.Set("limit", strconv.Itoa(resultLimit))
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

	candidates := make([]domain.MetadataCandidate, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		alternatives := make([]string, 0, 2)
		for _, alt := range []string{item.TitleEnglish, item.TitleJapanese} {
			alt = strings.TrimSpace(alt)
			if alt != "" && alt != title {
				alternatives = append(alternatives, alt)
			}
		}

		candidate := domain.MetadataCandidate{
			Source:            "jikan",
			SourceID:          strconv.FormatInt(item.MalID, 10),
			MediaType:         domain.MediaTypeManga,
			Title:             title,
			TitleAlternatives: alternatives,
			Description:       strings.TrimSpace(item.Synopsis),
			Year:              common.YearFromDate(item.Published.From),
		}
		if cover := strings.TrimSpace(item.Images.JPG.LargeImageURL); cover != "" {
			candidate.CoverURL = cover
		} else {
			candidate.CoverURL = strings.TrimSpace(item.Images.JPG.ImageURL)
		}
		if len(item.Authors) > 0 {
			candidate.Author = strings.TrimSpace(item.Authors[0].Name)
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}
