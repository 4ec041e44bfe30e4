package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched table stays fresh.
	DefaultTTL = time.Hour

	storeKeyPrefix = "rates:"

	fetchAttempts = 3
	fetchBackoff  = 250 * time.Millisecond
)

// Table maps currency codes to multiplicative rates relative to Base.
// Tables are immutable once published: refreshes swap in a new pointer, so
// concurrent readers never see a partially-updated one.
type Table struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Rate returns the rate for code, false when absent.
func (t *Table) Rate(code string) (decimal.Decimal, bool) {
	r, ok := t.Rates[code]
	return r, ok
}

func (t *Table) fresh(now time.Time, ttl time.Duration) bool {
	return !t.FetchedAt.IsZero() && now.Sub(t.FetchedAt) < ttl
}

// Store persists tables across process restarts.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Cache is the owner and sole writer of rate tables. Lookups within the TTL
// are served from memory; expiry triggers a single-flight refetch with the
// fallback chain fresh fetch -> stale cache -> static table.
type Cache struct {
	source Source
	store  Store
	ttl    time.Duration
	now    func() time.Time

	mu     sync.RWMutex
	tables map[string]*Table

	group singleflight.Group
}

func NewCache(source Source, store Store) *Cache {
	return &Cache{
		source: source,
		store:  store,
		ttl:    DefaultTTL,
		now:    time.Now,
		tables: make(map[string]*Table),
	}
}

// SetTTL overrides the freshness window. Call it before the cache is in use;
// non-positive values keep DefaultTTL.
func (c *Cache) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		c.ttl = ttl
	}
}

// Rates returns the table for base. It never fails: when the source is
// unreachable it degrades to the last persisted table regardless of age, and
// to the static fallback when nothing was ever persisted.
func (c *Cache) Rates(ctx context.Context, base string) *Table {
	if t := c.cached(base); t != nil && t.fresh(c.now(), c.ttl) {
		return t
	}

	// Cold memory after a restart: the persisted table may still be fresh.
	if c.cached(base) == nil {
		if t := c.restore(ctx, base); t != nil && t.fresh(c.now(), c.ttl) {
			return t
		}
	}

	v, _, _ := c.group.Do(base, func() (any, error) {
		// A coalesced waiter may arrive right after a refresh completed.
		if t := c.cached(base); t != nil && t.fresh(c.now(), c.ttl) {
			return t, nil
		}

		table, err := c.fetch(ctx, base)
		if err == nil {
			c.persist(ctx, table)
			c.swap(table)
			return table, nil
		}
		slog.WarnContext(ctx, "Rate fetch failed, falling back",
			"base", base, "error", err)

		if t := c.cached(base); t != nil {
			return t, nil
		}
		if t := c.restore(ctx, base); t != nil {
			return t, nil
		}
		return fallbackTable(base), nil
	})
	return v.(*Table)
}

// Rate implements currency.RateProvider.
func (c *Cache) Rate(ctx context.Context, base, target string) (decimal.Decimal, bool) {
	return c.Rates(ctx, base).Rate(target)
}

func (c *Cache) cached(base string) *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tables[base]
}

func (c *Cache) swap(t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[t.Base] = t
}

// fetch tries the source a few times with backoff so a transient blip does
// not immediately push readers onto stale data.
func (c *Cache) fetch(ctx context.Context, base string) (*Table, error) {
	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(fetchBackoff << (attempt - 1)):
			}
		}

		rates, err := c.source.FetchLatest(ctx, base)
		if err == nil {
			return &Table{Base: base, Rates: rates, FetchedAt: c.now()}, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch rates for %s: %w", base, lastErr)
}

func (c *Cache) persist(ctx context.Context, t *Table) {
	body, err := json.Marshal(t)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to marshal rate table", "base", t.Base, "error", err)
		return
	}
	if err := c.store.Set(ctx, storeKeyPrefix+t.Base, string(body)); err != nil {
		// Persistence is best effort, the in-memory table still serves reads.
		slog.WarnContext(ctx, "Failed to persist rate table", "base", t.Base, "error", err)
	}
}

// restore loads the persisted table for base into memory, whatever its age.
func (c *Cache) restore(ctx context.Context, base string) *Table {
	body, found, err := c.store.Get(ctx, storeKeyPrefix+base)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read persisted rate table", "base", base, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var t Table
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		slog.WarnContext(ctx, "Discarding corrupt persisted rate table", "base", base, "error", err)
		return nil
	}
	c.swap(&t)
	return &t
}
