package metadata

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"readito/metadataservice/internal/domain"
)

var (
	ErrInvalidQuery    = errors.New("title is required")
	ErrNoProviders     = errors.New("no metadata providers configured")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider is one external metadata source. Search runs a single query and
// returns zero or more candidates; an error means the source itself failed,
// not that nothing matched.
type Provider interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, query string) ([]domain.MetadataCandidate, error)
}

// RateLimited is an optional interface for providers whose upstream API
// enforces a request budget. The service throttles queries accordingly.
type RateLimited interface {
	RateLimit() rate.Limit
}

type Service struct {
	providers     map[string]Provider
	order         []string
	timeout       time.Duration
	cacheDisabled bool
	cacheTTL      time.Duration
	now           func() time.Time

	cacheMu    sync.Mutex
	cache      map[string]cachedOutcome
	redisCache *RedisCacheBackend

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter

	healthMu sync.Mutex
	health   map[string]*providerHealth
}

type ServiceOption func(*Service)

func WithRedisCache(backend *RedisCacheBackend) ServiceOption {
	return func(s *Service) {
		s.redisCache = backend
	}
}

func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

// WithClock overrides the time source used for cache expiry. Tests use it
// to step through TTL windows without sleeping.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(providers []Provider, timeout time.Duration, opts ...ServiceOption) *Service {
	registry := make(map[string]Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name == "" {
			continue
		}
		if _, exists := registry[name]; !exists {
			order = append(order, name)
		}
		registry[name] = provider
	}

	// A non-positive timeout means no service-level deadline: rounds run
	// until every dispatched request returns or the caller cancels.
	if timeout < 0 {
		timeout = 0
	}

	svc := &Service{
		providers: registry,
		order:     order,
		timeout:   timeout,
		cacheTTL:  defaultCacheTTL,
		now:       time.Now,
		cache:     make(map[string]cachedOutcome),
		limiters:  make(map[string]*rate.Limiter),
		health:    make(map[string]*providerHealth),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *Service) Providers() []domain.ProviderInfo {
	if len(s.providers) == 0 {
		return nil
	}
	items := make([]domain.ProviderInfo, 0, len(s.providers))
	for _, name := range s.order {
		provider := s.providers[name]
		info := provider.Info()
		if info.Name == "" {
			info.Name = name
		}
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Label == "" {
			info.Label = info.Name
		}
		items = append(items, info)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

func (s *Service) resolveProviders(providerNames []string) ([]Provider, error) {
	if len(s.providers) == 0 {
		return nil, ErrNoProviders
	}

	if len(providerNames) == 0 {
		all := make([]Provider, 0, len(s.order))
		for _, name := range s.order {
			all = append(all, s.providers[name])
		}
		sort.Slice(all, func(i, j int) bool {
			return strings.ToLower(all[i].Name()) < strings.ToLower(all[j].Name())
		})
		return all, nil
	}

	selected := make([]Provider, 0, len(providerNames))
	seen := make(map[string]struct{}, len(providerNames))
	for _, rawName := range providerNames {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if name == "" {
			continue
		}
		provider, ok := s.providers[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, provider)
	}

	if len(selected) == 0 {
		return nil, ErrNoProviders
	}
	return selected, nil
}

// waitProviderRateLimit blocks until the provider's limiter grants a slot.
// Providers without a declared limit run unthrottled.
func (s *Service) waitProviderRateLimit(ctx context.Context, provider Provider) error {
	limited, ok := provider.(RateLimited)
	if !ok {
		return nil
	}

	name := strings.ToLower(strings.TrimSpace(provider.Name()))
	s.limiterMu.Lock()
	limiter, exists := s.limiters[name]
	if !exists {
		limiter = rate.NewLimiter(limited.RateLimit(), 1)
		s.limiters[name] = limiter
	}
	s.limiterMu.Unlock()

	return limiter.Wait(ctx)
}
