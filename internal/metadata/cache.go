package metadata

import (
	"context"
	"sort"
	"strings"
	"time"

	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/metrics"
)

const (
	// defaultCacheTTL keeps resolved outcomes for a week. External
	// catalogs change slowly, and re-resolving a whole library on every
	// restart hammers the upstream APIs for identical answers.
	defaultCacheTTL        = 7 * 24 * time.Hour
	defaultCacheMaxEntries = 1000
)

type cachedOutcome struct {
	outcome   domain.SearchOutcome
	updatedAt time.Time
	expiresAt time.Time
}

// buildCacheKey identifies a resolve by its normalized title, normalized
// author, and the sorted set of providers it queried. Path and chapter
// inputs are deliberately excluded: two copies of the same book in
// different folders should share a cache entry.
func (s *Service) buildCacheKey(request domain.ResolveRequest, selected []Provider) string {
	names := make([]string, 0, len(selected))
	for _, provider := range selected {
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return Normalize(request.Title) + "|" + Normalize(request.Author) + "|" + strings.Join(names, ",")
}

func (s *Service) cacheLookup(ctx context.Context, key string, now time.Time) (domain.SearchOutcome, bool) {
	if s.redisCache != nil {
		outcome, found, err := s.redisCache.Get(ctx, key)
		if err == nil && found {
			metrics.CacheHitsTotal.Inc()
			s.cacheStoreMemoryOnly(key, outcome, now)
			return outcome, true
		}
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	entry, ok := s.cache[key]
	if !ok {
		metrics.CacheMissesTotal.Inc()
		return domain.SearchOutcome{}, false
	}
	if now.After(entry.expiresAt) {
		metrics.CacheMissesTotal.Inc()
		delete(s.cache, key)
		return domain.SearchOutcome{}, false
	}

	metrics.CacheHitsTotal.Inc()
	return cloneOutcome(entry.outcome), true
}

func (s *Service) cacheStore(ctx context.Context, key string, outcome domain.SearchOutcome, now time.Time) {
	ttl := s.cacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	if s.redisCache != nil {
		_ = s.redisCache.Set(ctx, key, outcome, ttl)
	}
	s.cacheStoreMemoryOnly(key, outcome, now)
}

func (s *Service) cacheStoreMemoryOnly(key string, outcome domain.SearchOutcome, now time.Time) {
	ttl := s.cacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache[key] = cachedOutcome{
		outcome:   cloneOutcome(outcome),
		updatedAt: now,
		expiresAt: now.Add(ttl),
	}
	s.trimCacheLocked(now)
}

func (s *Service) trimCacheLocked(now time.Time) {
	for key, entry := range s.cache {
		if now.After(entry.expiresAt) {
			delete(s.cache, key)
		}
	}
	if len(s.cache) <= defaultCacheMaxEntries {
		return
	}

	type pair struct {
		key   string
		entry cachedOutcome
	}
	items := make([]pair, 0, len(s.cache))
	for key, entry := range s.cache {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].entry.updatedAt.Before(items[j].entry.updatedAt)
	})
	for i := 0; i < len(items)-defaultCacheMaxEntries; i++ {
		delete(s.cache, items[i].key)
	}
}

func cloneOutcome(outcome domain.SearchOutcome) domain.SearchOutcome {
	cloned := outcome
	if outcome.RankedCandidates != nil {
		cloned.RankedCandidates = make([]domain.RankedCandidate, len(outcome.RankedCandidates))
		for i, item := range outcome.RankedCandidates {
			copied := item
			copied.Candidate.TitleAlternatives = append([]string(nil), item.Candidate.TitleAlternatives...)
			cloned.RankedCandidates[i] = copied
		}
	}
	if outcome.Decision != nil {
		decision := *outcome.Decision
		decision.Candidate.TitleAlternatives = append([]string(nil), outcome.Decision.Candidate.TitleAlternatives...)
		cloned.Decision = &decision
	}
	if outcome.Providers != nil {
		cloned.Providers = append([]domain.ProviderStatus(nil), outcome.Providers...)
	}
	return cloned
}
