// Package cache memoizes parsed expressions.
//
// Hosts typically parse the same few condition texts over and over, e.g.
// once per configuration reload. A Cache parses each distinct text once for a
// fixed language configuration and hands out the shared, immutable result.
package cache

import (
	"log/slog"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/zeebo/xxh3"

	"github.com/zephyrtronium/condexpr"
	"github.com/zephyrtronium/condexpr/internal/log"
)

// DefaultSize is the number of entries a Cache holds when created with a
// non-positive size.
const DefaultSize = 512

// Cache is an LRU cache of parse results keyed by source text. Parse
// failures are cached as well. A Cache is safe for concurrent use.
type Cache struct {
	cfg      *condexpr.Config
	simplify bool
	logger   log.Logger

	mtx sync.Mutex
	lru *lru.LRU[uint64, *entry]

	hits   uint64
	misses uint64
}

type entry struct {
	src  string
	expr *condexpr.Expr
	err  error
}

// Option configures a Cache.
type Option func(*Cache)

// WithSimplify makes the cache store simplified expressions.
func WithSimplify() Option {
	return func(c *Cache) { c.simplify = true }
}

// WithLogger sets the logger for cache events. The default is the package
// default logger.
func WithLogger(l log.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache of up to size parse results under cfg. If cfg is nil,
// condexpr.DefaultConfig is used.
func New(cfg *condexpr.Config, size int, opts ...Option) (*Cache, error) {
	if cfg == nil {
		cfg = condexpr.DefaultConfig()
	}
	if size <= 0 {
		size = DefaultSize
	}
	c := &Cache{cfg: cfg, logger: log.Default()}
	for _, opt := range opts {
		opt(c)
	}
	l, err := lru.NewLRU[uint64, *entry](size, c.evicted)
	if err != nil {
		return nil, err
	}
	c.lru = l
	c.logger = c.logger.With(slog.String("component", "cache"))
	return c, nil
}

// Parse returns the parsed expression for src, parsing it if it is not
// cached. The error, if any, is the one condexpr.Parse returned.
func (c *Cache) Parse(src string) (*condexpr.Expr, error) {
	key := xxh3.HashString(src)
	c.mtx.Lock()
	e, ok := c.lru.Get(key)
	if ok && e.src == src {
		c.hits++
		c.mtx.Unlock()
		c.logger.Trace("cache hit", slog.String("key", strconv.FormatUint(key, 16)))
		return e.expr, e.err
	}
	c.misses++
	c.mtx.Unlock()

	// Parse outside the lock. Concurrent misses on the same text both parse,
	// and the later result replaces the earlier.
	e = &entry{src: src}
	e.expr, e.err = condexpr.Parse(src, c.cfg)
	if e.err == nil && c.simplify {
		e.expr = e.expr.Simplify()
	}
	c.logger.Trace("cache miss",
		slog.String("key", strconv.FormatUint(key, 16)),
		slog.Bool("collision", ok),
		slog.Bool("failed", e.err != nil),
	)

	c.mtx.Lock()
	c.lru.Add(key, e)
	c.mtx.Unlock()
	return e.expr, e.err
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lru.Len()
}

// Stats returns the number of cache hits and misses so far.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.hits, c.misses
}

// Purge removes all entries.
func (c *Cache) Purge() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.lru.Purge()
	c.logger.Debug("cache purged")
}

// Config returns the language configuration used for parsing.
func (c *Cache) Config() *condexpr.Config {
	return c.cfg
}

func (c *Cache) evicted(key uint64, e *entry) {
	c.logger.Trace("cache evict", slog.String("key", strconv.FormatUint(key, 16)), slog.Int("src_len", len(e.src)))
}
