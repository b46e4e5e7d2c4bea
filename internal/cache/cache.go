// Package cache memoizes compiled regular expressions so that evaluating
// the same rule text against many requests does not re-run the safety
// layer and re-compile the same pattern on every call. The host wires a
// MatcherCache into the live request path by assigning its Compile method
// to rewrite.CompileFunc once at startup (see cmd/htaccess-tester/serve.go) -
// every call rewrite.Evaluate makes to compile a pattern then goes through
// the cache instead of recompiling.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/chilledornaments/htaccess-tester-core/pkg/rewrite"
)

var (
	matcherCacheHitMetric = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_cache_hit",
			Help: "Number of compiled-matcher cache hits",
		})
	matcherCacheMissMetric = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matcher_cache_miss",
			Help: "Number of compiled-matcher cache misses",
		})
	matcherCacheCleanupJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "matcher_cache_cleanup_job_duration_milliseconds",
			Help: "Duration of the matcher cache cleanup job",
		})
)

type key struct {
	pattern          string
	nocase           bool
	maxSubjectLength int
}

type item struct {
	matcher   *rewrite.Matcher
	err       error
	ttl       int64
	createdAt int64
}

// MatcherCache caches the result of rewrite.Compile, keyed by the exact
// inputs that determine its output. A miss compiles and stores both a
// successful matcher and a compile error, so a pattern that the safety
// layer rejects isn't re-validated on every request either.
type MatcherCache struct {
	logger *slog.Logger
	ttl    int64
	lock   sync.RWMutex
	items  map[key]item
}

// NewMatcherCache starts a MatcherCache along with a background goroutine
// that evicts expired entries every interval seconds, until ctx is done.
func NewMatcherCache(ctx context.Context, l *slog.Logger, interval int, ttl int64) *MatcherCache {
	logger := l.WithGroup("matcher_cache")
	c := &MatcherCache{
		logger: logger,
		ttl:    ttl,
		items:  make(map[key]item),
	}

	go c.cleanupLoop(ctx, interval)

	return c
}

func (c *MatcherCache) cleanupLoop(ctx context.Context, interval int) {
	for {
		if ctx.Err() != nil {
			c.logger.Info("stopping matcher cache cleanup")
			return
		}

		start := time.Now().UnixMilli()
		now := time.Now().Unix()

		c.lock.Lock()
		for k, v := range c.items {
			if now > v.createdAt+v.ttl {
				delete(c.items, k)
			}
		}
		c.lock.Unlock()

		end := time.Now().UnixMilli()
		matcherCacheCleanupJobDuration.Observe(float64(end - start))

		time.Sleep(time.Duration(interval) * time.Second)
	}
}

// Compile returns a cached rewrite.Matcher (or cached compile error) for
// the given pattern, compiling and storing it on first use.
func (c *MatcherCache) Compile(pattern string, nocase bool, maxSubjectLength int) (*rewrite.Matcher, error) {
	k := key{pattern: pattern, nocase: nocase, maxSubjectLength: maxSubjectLength}

	c.lock.RLock()
	v, ok := c.items[k]
	c.lock.RUnlock()
	if ok {
		matcherCacheHitMetric.Inc()
		return v.matcher, v.err
	}

	matcherCacheMissMetric.Inc()
	matcher, err := rewrite.Compile(pattern, nocase, maxSubjectLength)

	c.lock.Lock()
	c.items[k] = item{
		matcher:   matcher,
		err:       err,
		ttl:       c.ttl,
		createdAt: time.Now().Unix(),
	}
	c.lock.Unlock()

	return matcher, err
}
