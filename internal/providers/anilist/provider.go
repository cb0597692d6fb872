package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/providers/common"
)

const (
	defaultEndpoint  = "https://graphql.anilist.co"
	defaultUserAgent = "Readito/1.0"
	defaultTimeout   = 8 * time.Second
)

const mangaQuery = `query ($search: String) {
  Page(page: 1, perPage: 5) {
    media(search: $search, type: MANGA) {
      id
      title { romaji english native }
      description
      coverImage { large }
      startDate { year }
      staff(perPage: 4) { edges { role node { name { full } } } }
    }
  }
}`

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

type graphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type graphQLResponse struct {
	Data struct {
		Page struct {
			Media []media `json:"media"`
		} `json:"Page"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type media struct {
	ID    int64 `json:"id"`
	Title struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
		Native  string `json:"native"`
	} `json:"title"`
	Description string `json:"description"`
	CoverImage  struct {
		Large string `json:"large"`
	} `json:"coverImage"`
	StartDate struct {
		Year int `json:"year"`
	} `json:"startDate"`
	Staff struct {
		Edges []struct {
			Role string `json:"role"`
			Node struct {
				Name struct {
					Full string `json:"full"`
				} `json:"name"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"staff"`
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
	return "anilist"
}

func (p *Provider) Info() domain.ProviderInfo {
	return domain.ProviderInfo{
		Name:       p.Name(),
		Label:      "AniList",
		MediaTypes: []domain.MediaType{domain.MediaTypeManga},
		Enabled:    true,
	}
}

func (p *Provider) Search(ctx context.Context, query string) ([]domain.MetadataCandidate, error) {
	body, err := json.Marshal(graphQLRequest{
		Query:     mangaQuery,
		Variables: map[string]string{"search": strings.TrimSpace(query)},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	payload, err := common.ReadJSONBody(resp)
	if err != nil {
		return nil, err
	}

	var parsed graphQLResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("unexpected provider payload: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", parsed.Errors[0].Message)
	}

	candidates := make([]domain.MetadataCandidate, 0, len(parsed.Data.Page.Media))
	for _, item := range parsed.Data.Page.Media {
		candidate, ok := toCandidate(item)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate)
	}
	return candidates, nil
}

func toCandidate(item media) (domain.MetadataCandidate, bool) {
	title := strings.TrimSpace(item.Title.English)
	if title == "" {
		title = strings.TrimSpace(item.Title.Romaji)
	}
	if title == "" {
		title = strings.TrimSpace(item.Title.Native)
	}
	if title == "" {
		return domain.MetadataCandidate{}, false
	}

	alternatives := make([]string, 0, 2)
	for _, alt := range []string{item.Title.Romaji, item.Title.English, item.Title.Native} {
		alt = strings.TrimSpace(alt)
		if alt != "" && alt != title {
			alternatives = append(alternatives, alt)
		}
	}

	candidate := domain.MetadataCandidate{
		Source:            "anilist",
		SourceID:          strconv.FormatInt(item.ID, 10),
		MediaType:         domain.MediaTypeManga,
		Title:             title,
		TitleAlternatives: alternatives,
		Description:       common.StripHTML(item.Description),
		CoverURL:          strings.TrimSpace(item.CoverImage.Large),
		Year:              item.StartDate.Year,
	}
	candidate.Author = storyAuthor(item)
	return candidate, true
}

// storyAuthor picks the writer from the staff list; AniList labels manga
// authors with "Story" roles.
func storyAuthor(item media) string {
	fallback := ""
	for _, edge := range item.Staff.Edges {
		name := strings.TrimSpace(edge.Node.Name.Full)
		if name == "" {
			continue
		}
		if fallback == "" {
			fallback = name
		}
		if strings.Contains(strings.ToLower(edge.Role), "story") {
			return name
		}
	}
	return fallback
}
