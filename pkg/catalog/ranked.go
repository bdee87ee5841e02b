package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crossfade/pkg/fuzzy"
)

// Ranked fans a search out to several catalogs and orders the merged hits by
// similarity to the term. Catalog failures are logged and skipped; an error is
// returned only when every catalog fails.
type Ranked struct {
	searchers  []Searcher
	normalizer *fuzzy.Normalizer
	logger     *zap.Logger
}

// NewRanked creates a ranked searcher over the given catalogs.
func NewRanked(logger *zap.Logger, searchers ...Searcher) *Ranked {
	return &Ranked{
		searchers:  searchers,
		normalizer: fuzzy.NewNormalizer(),
		logger:     logger.Named("catalog"),
	}
}

type scoredResult struct {
	result Result
	score  float64
}

// Search implements Searcher.
func (r *Ranked) Search(ctx context.Context, term string, kind Kind) ([]Result, error) {
	if strings.TrimSpace(term) == "" {
		return nil, nil
	}

	perSearcher := make([][]Result, len(r.searchers))
	var (
		mu   sync.Mutex
		errs []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, searcher := range r.searchers {
		g.Go(func() error {
			results, err := searcher.Search(gctx, term, kind)
			if err != nil {
				r.logger.Debug("Catalog search failed", zap.String("term", term), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			perSearcher[i] = results
			return nil
		})
	}
	_ = g.Wait()

	if len(r.searchers) > 0 && len(errs) == len(r.searchers) {
		return nil, errors.Join(errs...)
	}

	seen := make(map[string]bool)
	var scored []scoredResult
	for _, results := range perSearcher {
		for _, result := range results {
			if seen[result.URL] {
				continue
			}
			seen[result.URL] = true
			scored = append(scored, scoredResult{
				result: result,
				score:  r.normalizer.Score(term, result.Title, result.Artist),
			})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	ranked := make([]Result, 0, len(scored))
	for _, s := range scored {
		ranked = append(ranked, s.result)
	}
	return ranked, nil
}
