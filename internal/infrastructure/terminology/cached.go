// Package terminology holds the terminology service adapters shared by the
// resolver. The FHIR client lives in the fhir subpackage.
package terminology

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/prometheus"
)

const cacheName = "terminology"

// Expander is satisfied by fhir.Client.
type Expander interface {
	Expand(ctx context.Context, filter string) ([]coding.Candidate, error)
}

// CachedClient memoizes expansions in Redis. Empty expansions are cached as
// negative entries; failed expansions are never cached.
type CachedClient struct {
	next      Expander
	cache     redis.Cache
	ttl       time.Duration
	namespace string
	logger    logging.Logger
	metrics   *prometheus.AppMetrics
}

// NewCachedClient wraps next. valueSetURL scopes the keys so that switching
// editions does not serve stale concepts.
func NewCachedClient(next Expander, cache redis.Cache, valueSetURL string, ttl time.Duration, logger logging.Logger, metrics *prometheus.AppMetrics) *CachedClient {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachedClient{
		next:      next,
		cache:     cache,
		ttl:       ttl,
		namespace: namespace(valueSetURL),
		logger:    logger.Named("terminology_cache"),
		metrics:   metrics,
	}
}

func namespace(valueSetURL string) string {
	sum := sha1.Sum([]byte(valueSetURL))
	return hex.EncodeToString(sum[:6])
}

// CacheKey is the key under which filter's expansion is stored. Filters
// differing only in case or surrounding space share an entry, as $expand
// filtering is case-insensitive.
func (c *CachedClient) CacheKey(filter string) string {
	return "expand:" + c.namespace + ":" + strings.ToLower(strings.TrimSpace(filter))
}

// Expand serves filter from the cache, falling back to the wrapped client.
func (c *CachedClient) Expand(ctx context.Context, filter string) ([]coding.Candidate, error) {
	var out []coding.Candidate
	hit, err := c.cache.GetOrSet(ctx, c.CacheKey(filter), &out, c.ttl, func(ctx context.Context) (interface{}, error) {
		cands, err := c.next.Expand(ctx, filter)
		if err != nil {
			return nil, err
		}
		if len(cands) == 0 {
			return nil, nil
		}
		return cands, nil
	})
	prometheus.RecordCacheAccess(c.metrics, cacheName, hit)

	switch {
	case err == nil:
		return out, nil
	case redis.IsNegative(err):
		return []coding.Candidate{}, nil
	default:
		c.logger.WithContext(ctx).Debug("expansion not cached", logging.String("filter", filter), logging.Err(err))
		return nil, err
	}
}
