package usecase

import (
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/V4T54L/baitwatch/internal/adapter/metrics"
	"github.com/V4T54L/baitwatch/internal/domain"
)

type classifyKey struct {
	userAgent string
	path      string
}

// CachedClassifier memoizes another Classifier in a bounded LRU keyed by
// the exact (user agent, path) pair. It is safe for concurrent use.
type CachedClassifier struct {
	next    Classifier
	cache   *lru.Cache[classifyKey, domain.ClassificationResult]
	metrics *metrics.IngestMetrics
}

var _ Classifier = (*CachedClassifier)(nil)

// NewCachedClassifier wraps next with an LRU holding at most size entries.
func NewCachedClassifier(next Classifier, size int, m *metrics.IngestMetrics) (*CachedClassifier, error) {
	cache, err := lru.New[classifyKey, domain.ClassificationResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification cache: %w", err)
	}
	return &CachedClassifier{next: next, cache: cache, metrics: m}, nil
}

// Classify returns the cached result for the pair, computing it on a miss.
func (c *CachedClassifier) Classify(userAgent, path string) domain.ClassificationResult {
	key := classifyKey{userAgent: userAgent, path: path}
	res, ok := c.cache.Get(key)
	if ok {
		c.metrics.ClassifyCacheHits.Inc()
	} else {
		c.metrics.ClassifyCacheMiss.Inc()
		res = c.next.Classify(userAgent, path)
		c.cache.Add(key, res)
	}
	c.metrics.Classifications.WithLabelValues(string(res.ThreatLevel)).Inc()

	res.MatchedPatterns = slices.Clone(res.MatchedPatterns)
	return res
}

// Len returns the number of cached pairs.
func (c *CachedClassifier) Len() int {
	return c.cache.Len()
}
