package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"readito/metadataservice/internal/domain"
	"readito/metadataservice/internal/metrics"
)

// maxConcurrentProviders limits how many provider queries run at once
// within a single variation round.
const maxConcurrentProviders = 10

const (
	// MinCandidateScore drops matches too weak to show a user.
	MinCandidateScore = 55.0
	// AutoApplyScore is the confidence above which a lone match is
	// trusted without asking.
	AutoApplyScore = 65.0
	// maxRankedCandidates caps the list returned to the caller.
	maxRankedCandidates = 5
)

type scoredPair struct {
	candidate domain.MetadataCandidate
	query     string
}

type preparedResolve struct {
	request    domain.ResolveRequest
	variations []string
	selected   []Provider
	sctx       ScoreContext
}

// Resolve runs the full pipeline for one book: variation generation,
// per-variation provider fan-out, scoring, ranking, and the apply
// decision. Provider failures never fail the resolve; an empty outcome
// is a normal result, not an error.
func (s *Service) Resolve(ctx context.Context, request domain.ResolveRequest, providerNames []string) (domain.SearchOutcome, error) {
	prepared, err := s.prepareResolve(request, providerNames)
	if err != nil {
		return domain.SearchOutcome{}, err
	}

	// Titles like "Volume 1" normalize to nothing. With no usable
	// variation the search cannot succeed, so no provider is queried.
	if len(prepared.variations) == 0 {
		return domain.SearchOutcome{RankedCandidates: []domain.RankedCandidate{}}, nil
	}

	if s.cacheDisabled || request.NoCache {
		return s.executeResolve(ctx, prepared), nil
	}

	startedAt := s.now()
	cacheKey := s.buildCacheKey(request, prepared.selected)
	if cached, ok := s.cacheLookup(ctx, cacheKey, startedAt); ok {
		cached.ElapsedMS = time.Since(startedAt).Milliseconds()
		return cached, nil
	}

	outcome := s.executeResolve(ctx, prepared)
	s.cacheStore(ctx, cacheKey, outcome, s.now())
	return outcome, nil
}

func (s *Service) prepareResolve(request domain.ResolveRequest, providerNames []string) (preparedResolve, error) {
	if strings.TrimSpace(request.Title) == "" {
		return preparedResolve{}, ErrInvalidQuery
	}

	selected, err := s.resolveProviders(providerNames)
	if err != nil {
		return preparedResolve{}, err
	}

	variations := BuildVariations(VariationInput{
		Title:        request.Title,
		Author:       request.Author,
		Path:         request.Path,
		ChapterNames: request.ChapterNames,
		ChapterPaths: request.ChapterPaths,
	})
	return preparedResolve{
		request:    request,
		variations: variations,
		selected:   selected,
		sctx:       NewScoreContext(request.Title, request.Path),
	}, nil
}

func (s *Service) executeResolve(ctx context.Context, prepared preparedResolve) domain.SearchOutcome {
	runCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	startedAt := time.Now()
	statuses := make(map[string]*domain.ProviderStatus, len(prepared.selected))
	for _, provider := range prepared.selected {
		name := strings.ToLower(strings.TrimSpace(provider.Name()))
		statuses[name] = &domain.ProviderStatus{Name: name, OK: true}
	}

	var (
		mu    sync.Mutex
		pairs []scoredPair
	)

	// Variations run in order, one full provider round each. The round
	// joins completely before the next variation starts so early
	// high-confidence queries are not starved by speculative ones.
	for _, variation := range prepared.variations {
		if runCtx.Err() != nil {
			break
		}
		s.runRound(runCtx, prepared.selected, variation, &mu, &pairs, statuses)
	}

	slog.Info("metadata resolve fan-out finished",
		slog.String("title", prepared.request.Title),
		slog.Int("variations", len(prepared.variations)),
		slog.Int("rawCandidates", len(pairs)),
		slog.Int64("elapsedMs", time.Since(startedAt).Milliseconds()),
	)

	outcome := s.rank(prepared, pairs)
	outcome.Variations = len(prepared.variations)
	outcome.ElapsedMS = time.Since(startedAt).Milliseconds()
	outcome.Providers = collectStatuses(statuses)
	return outcome
}

// runRound queries every selected provider with one variation and blocks
// until all of them return. Errors are absorbed into provider status and
// health tracking.
func (s *Service) runRound(
	ctx context.Context,
	selected []Provider,
	variation string,
	mu *sync.Mutex,
	pairs *[]scoredPair,
	statuses map[string]*domain.ProviderStatus,
) {
	sem := semaphore.NewWeighted(maxConcurrentProviders)
	var wg sync.WaitGroup

	for _, provider := range selected {
		wg.Add(1)
		go func(current Provider) {
			defer wg.Done()

			name := strings.ToLower(strings.TrimSpace(current.Name()))

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				markStatus(statuses, name, 0, errors.New("context cancelled"))
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			now := time.Now()
			if blocked, until, lastErr := s.isProviderBlocked(name, now); blocked {
				mu.Lock()
				markStatus(statuses, name, 0, fmt.Errorf("provider temporarily unhealthy until %s: %s", until.UTC().Format(time.RFC3339), lastErr))
				mu.Unlock()
				return
			}

			if err := s.waitProviderRateLimit(ctx, current); err != nil {
				mu.Lock()
				markStatus(statuses, name, 0, errors.New("rate limit wait cancelled"))
				mu.Unlock()
				return
			}

			queryStartedAt := time.Now()
			candidates, searchErr := current.Search(ctx, variation)
			latency := time.Since(queryStartedAt)
			s.recordProviderResult(name, variation, searchErr, latency, time.Now())

			if searchErr != nil {
				slog.Warn("metadata provider failed",
					slog.String("provider", name),
					slog.String("query", variation),
					slog.Int64("elapsedMs", latency.Milliseconds()),
					slog.String("error", searchErr.Error()),
				)
				mu.Lock()
				markStatus(statuses, name, 0, searchErr)
				mu.Unlock()
				return
			}

			mu.Lock()
			markStatus(statuses, name, len(candidates), nil)
			for _, candidate := range candidates {
				*pairs = append(*pairs, scoredPair{candidate: candidate, query: variation})
			}
			mu.Unlock()
		}(provider)
	}

	wg.Wait()
}

func markStatus(statuses map[string]*domain.ProviderStatus, name string, count int, err error) {
	status, ok := statuses[name]
	if !ok {
		status = &domain.ProviderStatus{Name: name, OK: true}
		statuses[name] = status
	}
	status.Count += count
	if err != nil {
		status.OK = false
		status.Error = err.Error()
	}
}

func collectStatuses(statuses map[string]*domain.ProviderStatus) []domain.ProviderStatus {
	items := make([]domain.ProviderStatus, 0, len(statuses))
	for _, status := range statuses {
		items = append(items, *status)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}

// rank scores all gathered candidates, filters out anime and weak
// matches, caps the list, and derives the apply decision. The query
// recorded in the outcome is always the first variation, which is the
// normalized title the user would recognize.
func (s *Service) rank(prepared preparedResolve, pairs []scoredPair) domain.SearchOutcome {
	outcome := domain.SearchOutcome{
		RankedCandidates: []domain.RankedCandidate{},
	}
	if len(prepared.variations) > 0 {
		outcome.SearchQueryUsed = prepared.variations[0]
	}

	// Candidates are scored as delivered: a result repeated across
	// variation rounds stays a separate candidate, and repeats alone are
	// enough to keep the lone-survivor auto-apply from firing.
	ranked := make([]domain.RankedCandidate, 0, len(pairs))
	for _, pair := range pairs {
		score := Score(pair.candidate, prepared.request.Title, prepared.request.Author, prepared.sctx)
		metrics.CandidateScoreHistogram.WithLabelValues(pair.candidate.Source).Observe(score)
		if pair.candidate.MediaType == domain.MediaTypeAnime {
			continue
		}
		if score < MinCandidateScore {
			continue
		}
		ranked = append(ranked, domain.RankedCandidate{Candidate: pair.candidate, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > maxRankedCandidates {
		ranked = ranked[:maxRankedCandidates]
	}
	outcome.RankedCandidates = ranked

	if len(ranked) == 1 {
		top := ranked[0]
		confirmed := top.Score >= AutoApplyScore
		outcome.Decision = &domain.MetadataDecision{
			Apply:     confirmed,
			Confirmed: confirmed,
			Score:     top.Score,
			Candidate: top.Candidate,
		}
	}
	return outcome
}
