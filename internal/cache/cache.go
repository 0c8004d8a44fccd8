// Package cache is the result cache: a content-addressed, single-flight
// result store keyed by the fingerprints paramspec produces. It wraps
// golang.org/x/sync/singleflight.Group — one producer call per in-flight
// key, every waiter sees the same result — and layers LRU+TTL retention and
// cancellation on top, since singleflight alone retains nothing once the
// call returns.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/arnauranchal/epcalc-server/internal/metrics"
)

// ErrCancelled is returned to every waiter on a fingerprint whose producer
// call was cancelled before it resolved.
var ErrCancelled = errors.New("cache: cancelled")

// Producer computes the value for a fingerprint. It is invoked at most once
// per fingerprint while its result is outstanding, regardless of how many
// concurrent callers request the same fingerprint.
type Producer func(ctx context.Context) (any, error)

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps a producer failure that is a property of the moment, not
// of the input — a saturated queue, a closing pool — so resolve returns it
// to this round's waiters without retaining a Failed entry. Negative-TTL
// caching only makes sense for failures the same input would reproduce.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

type cacheEntry struct {
	value     any
	err       error
	expiresAt time.Time
	elem      *list.Element
}

// waiterState tracks every caller currently waiting on one fingerprint's
// in-flight producer call. singleflight.Group.DoChan delivers the shared
// result to every waiter's own channel independently, so each waiter's
// resolve() runs once — waiters counts them down so the struct (and its
// cancelled flag) only goes away once every one of them has drained,
// instead of the first to arrive erasing state the others still need.
type waiterState struct {
	ch        chan struct{}
	waiters   int
	cancelled bool
}

// Cache is the lookup-or-insert store.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lru     *list.List // front = most recently used; holds fingerprint strings

	waiters map[string]*waiterState

	group singleflight.Group

	maxEntries  int
	maxAge      time.Duration
	negativeTTL time.Duration

	now     func() time.Time
	logger  *zerolog.Logger
	metrics *metrics.Registry
}

// Config configures retention. Zero values fall back to the defaults.
type Config struct {
	MaxEntries  int
	MaxAge      time.Duration
	NegativeTTL time.Duration
	Logger      *zerolog.Logger
	Metrics     *metrics.Registry
}

func New(cfg Config) *Cache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 300 * time.Second
	}
	negativeTTL := cfg.NegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = 30 * time.Second
	}
	return &Cache{
		entries:     make(map[string]*cacheEntry),
		lru:         list.New(),
		waiters:     make(map[string]*waiterState),
		maxEntries:  maxEntries,
		maxAge:      maxAge,
		negativeTTL: negativeTTL,
		now:         time.Now,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// LookupOrInsert returns the cached value for fingerprint, or runs produce
// (coalesced across concurrent callers) and caches what it returns. Cached
// failures are retained for the shorter negative TTL. A context deadline/cancel
// only affects this particular caller's wait — it does not stop the shared
// producer call other waiters may be relying on. Cancel releases every
// waiter on the in-flight call and keeps its result out of the cache; the
// producer itself runs on a background context and is not interrupted.
func (c *Cache) LookupOrInsert(ctx context.Context, fingerprint string, produce Producer) (any, error) {
	if val, err, ok := c.peek(fingerprint); ok {
		return val, err
	}

	cancelCh := c.registerWaiter(fingerprint)
	defer c.releaseWaiter(fingerprint)

	resultCh := c.group.DoChan(fingerprint, func() (any, error) {
		return produce(context.Background())
	})

	select {
	case res := <-resultCh:
		return c.resolve(fingerprint, res.Val, res.Err)
	case <-cancelCh:
		return nil, ErrCancelled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// LookupOrInsertCached behaves exactly like LookupOrInsert but additionally
// reports whether the value came from a pre-existing entry (a true cache
// hit) rather than this call's own contribution to an in-flight or fresh
// producer call. The coordinator uses this to populate the per-point
// `cached` flag and `meta.cached_points`.
func (c *Cache) LookupOrInsertCached(ctx context.Context, fingerprint string, produce Producer) (any, error, bool) {
	if val, err, ok := c.peek(fingerprint); ok {
		return val, err, true
	}
	val, err := c.LookupOrInsert(ctx, fingerprint, produce)
	return val, err, false
}

// Cancel wakes every waiter currently blocked on fingerprint with
// ErrCancelled and suppresses the commit that the in-flight producer call
// would otherwise record. The cancelled flag stays attached to this round's
// waiterState until every waiter registered against it has drained (see
// releaseWaiter), so a waiter whose resolve() runs after another waiter has
// already observed the flag still sees it — nothing from a cancelled round
// ever lands in the cache.
func (c *Cache) Cancel(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiters[fingerprint]
	if !ok || w.cancelled {
		return false
	}
	w.cancelled = true
	close(w.ch)
	return true
}

func (c *Cache) registerWaiter(fingerprint string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiters[fingerprint]
	if !ok {
		w = &waiterState{ch: make(chan struct{})}
		c.waiters[fingerprint] = w
	}
	w.waiters++
	return w.ch
}

// releaseWaiter un-registers one call's stake in fingerprint's in-flight
// round, deleting the waiterState once every registered waiter has
// released it — only then is it safe for a later, unrelated round on the
// same fingerprint to start from a clean (uncancelled) state.
func (c *Cache) releaseWaiter(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiters[fingerprint]
	if !ok {
		return
	}
	w.waiters--
	if w.waiters <= 0 {
		delete(c.waiters, fingerprint)
	}
}

// resolve commits one producer call's outcome. Because DoChan fans the same
// result out to every concurrent waiter independently, resolve runs once
// per waiter on the resultCh branch — only the first to arrive may mutate
// the LRU structure; later callers dedupe against the entry it already
// installed instead of each pushing their own orphaned list element (which
// would leave evictLocked spinning forever over an unreachable tail node).
func (c *Cache) resolve(fingerprint string, val any, err error) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.waiters[fingerprint]; ok && w.cancelled {
		return nil, ErrCancelled
	}

	if existing, ok := c.entries[fingerprint]; ok && !c.now().After(existing.expiresAt) {
		c.lru.MoveToFront(existing.elem)
		return existing.value, existing.err
	}

	var te *transientError
	if errors.As(err, &te) {
		return val, err
	}

	ttl := c.maxAge
	if err != nil {
		ttl = c.negativeTTL
	}
	entry := &cacheEntry{value: val, err: err, expiresAt: c.now().Add(ttl)}
	entry.elem = c.lru.PushFront(fingerprint)
	c.entries[fingerprint] = entry
	c.evictLocked()

	return val, err
}

func (c *Cache) peek(fingerprint string) (any, error, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fingerprint]
	if !ok {
		return nil, nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.removeLocked(fingerprint, entry)
		return nil, nil, false
	}
	c.lru.MoveToFront(entry.elem)
	return entry.value, entry.err, true
}

func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		back := c.lru.Back()
		if back == nil {
			return
		}
		fp := back.Value.(string)
		c.removeLocked(fp, c.entries[fp])
		if c.logger != nil {
			c.logger.Debug().Str("fingerprint", fp).Msg("cache: evicted entry")
		}
		if c.metrics != nil {
			c.metrics.CacheEvictions.Inc()
		}
	}
}

func (c *Cache) removeLocked(fingerprint string, entry *cacheEntry) {
	if entry != nil && entry.elem != nil {
		c.lru.Remove(entry.elem)
	}
	delete(c.entries, fingerprint)
}

// Len reports the number of Ready/Failed entries currently retained.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
