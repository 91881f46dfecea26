package weather

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/sometimes/internal/ambient"
)

// Cache defaults.
const (
	DefaultTTL      = 6 * time.Hour
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = time.Minute
)

// Cache wraps a Source with a freshness window, a fetch rate limit and a
// per-fetch timeout. CurrentCondition never returns an error.
//
// Thread-safety: safe for concurrent use; concurrent callers share one
// fetch.
type Cache struct {
	src     Source
	ttl     time.Duration
	timeout time.Duration
	limiter *rate.Limiter
	now     func() time.Time

	mu        sync.Mutex
	cached    ambient.Weather
	fetchedAt time.Time
	has       bool
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets how long a reading stays fresh.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = d
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.timeout = d
	}
}

// WithMinInterval limits fetches to one per interval.
func WithMinInterval(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache wraps src.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{
		src:     src,
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		limiter: rate.NewLimiter(rate.Every(DefaultInterval), 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentCondition returns the cached reading while fresh, otherwise
// fetches a new one. On failure it falls back to the stale reading, then
// to SeasonalFallback.
func (c *Cache) CurrentCondition(ctx context.Context) (ambient.Weather, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.has && now.Sub(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	return c.fetchLocked(ctx, now), nil
}

// Refresh fetches a new reading even while the cached one is fresh. A failed
// fetch keeps the previous reading.
func (c *Cache) Refresh(ctx context.Context) ambient.Weather {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchLocked(ctx, c.now())
}

// fetchLocked asks the source for a reading and stores it on success.
// Caller holds mu.
func (c *Cache) fetchLocked(ctx context.Context, now time.Time) ambient.Weather {
	if !c.limiter.Allow() {
		slog.Debug("weather fetch throttled")
		return c.fallback(now)
	}

	fctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	w, err := c.src.CurrentCondition(fctx)
	if err != nil || !w.Known() {
		slog.Warn("weather fetch failed; using fallback",
			"condition", w,
			"error", err,
		)
		return c.fallback(now)
	}

	c.cached, c.fetchedAt, c.has = w, now, true
	slog.Debug("weather fetched", "condition", w)
	return w
}

// fallback returns the stale reading if any, else a seasonal one.
// Caller holds mu.
func (c *Cache) fallback(now time.Time) ambient.Weather {
	if c.has {
		return c.cached
	}
	return SeasonalFallback(now)
}
