// Package refresh keeps the derived ledger views consistent with the record
// store. A coordinator subscribes to the change feed for one owner scope and
// recomputes aggregation with a single-flight discipline: at most one refresh
// runs at a time, and triggers arriving mid-refresh coalesce into exactly one
// follow-up pass.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"byedebt/internal/core"
	"byedebt/internal/feed"
	"byedebt/internal/ledger"
)

const (
	StateIdle State = iota
	StateSubscribed
	StateRefreshing
	StateUnsubscribed
)

type (
	State int

	// RecordLister fetches the authoritative record set for a scope.
	RecordLister interface {
		ListByOwner(ctx context.Context, ownerID string) ([]core.DebtRecord, error)
	}

	// Snapshot is one published aggregation result. It always reflects a
	// complete record set, never a partially refreshed one.
	Snapshot struct {
		Totals     ledger.Totals
		Persons    []ledger.PersonSummary
		Insights   ledger.Insights
		ComputedAt time.Time
	}

	// Config wires a coordinator to its scope.
	Config struct {
		OwnerID  string
		UserName string
		// Display resolves the display currency code per pass, so a
		// preference change takes effect on the next refresh.
		Display func(ctx context.Context) string
		// Publish receives every snapshot. It must not call back into the
		// coordinator.
		Publish func(Snapshot)
	}
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribed:
		return "subscribed"
	case StateRefreshing:
		return "refreshing"
	case StateUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Coordinator drives recomputation for one owner scope.
type Coordinator struct {
	store RecordLister
	bus   feed.Feed
	agg   *ledger.Aggregator
	cfg   Config
	now   func() time.Time

	ctx context.Context

	mu      sync.Mutex
	state   State
	pending bool
	sub     feed.Subscription
	latest  *Snapshot
}

func NewCoordinator(store RecordLister, bus feed.Feed, agg *ledger.Aggregator, cfg Config) *Coordinator {
	return &Coordinator{
		store: store,
		bus:   bus,
		agg:   agg,
		cfg:   cfg,
		now:   time.Now,
		state: StateIdle,
	}
}

// Start performs the initial fetch, publishes the first snapshot and opens
// the feed subscription. The initial fetch is the one failure that
// propagates: with no previous snapshot there is nothing to fall back on.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return fmt.Errorf("start coordinator: already %s", c.state)
	}
	c.mu.Unlock()

	records, err := c.store.ListByOwner(ctx, c.cfg.OwnerID)
	if err != nil {
		return fmt.Errorf("initial record fetch: %w", err)
	}
	snap := c.compute(ctx, records)

	sub, err := c.bus.Subscribe(ctx, c.cfg.OwnerID, c.onEvent)
	if err != nil {
		return fmt.Errorf("subscribe to change feed: %w", err)
	}

	c.mu.Lock()
	c.ctx = ctx
	c.sub = sub
	c.latest = &snap
	c.cfg.Publish(snap)
	if c.pending {
		// An event arrived between Subscribe and here. The initial snapshot
		// predates that change, so run the pass it asked for.
		c.pending = false
		c.state = StateRefreshing
		go c.refresh()
	} else {
		c.state = StateSubscribed
	}
	c.mu.Unlock()

	slog.InfoContext(ctx, "Ledger scope started",
		"owner_id", c.cfg.OwnerID, "records", len(records))
	return nil
}

// onEvent implements the coalescing discipline: an event during a refresh
// only marks that one more pass is needed.
func (c *Coordinator) onEvent(e feed.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateRefreshing:
		c.pending = true
	case StateSubscribed:
		c.state = StateRefreshing
		go c.refresh()
	case StateIdle:
		// The subscription is live but Start has not finished wiring up.
		// Remember the trigger; Start drains it after the first snapshot.
		c.pending = true
	default:
		// Torn down: nothing listens anymore.
		slog.Debug("Dropping change event", "state", c.state.String(), "kind", e.Kind)
	}
}

// refresh refetches and recomputes until no coalesced trigger is left. A
// fetch failure keeps the previous snapshot; teardown discards the result.
func (c *Coordinator) refresh() {
	for {
		records, err := c.store.ListByOwner(c.ctx, c.cfg.OwnerID)
		var snap Snapshot
		if err == nil {
			snap = c.compute(c.ctx, records)
		} else {
			slog.WarnContext(c.ctx, "Refresh fetch failed, keeping previous snapshot",
				"owner_id", c.cfg.OwnerID, "error", err)
		}

		c.mu.Lock()
		if c.state == StateUnsubscribed {
			c.mu.Unlock()
			return
		}
		again := c.pending
		c.pending = false
		if !again {
			c.state = StateSubscribed
		}
		if err == nil {
			c.latest = &snap
			c.cfg.Publish(snap)
		}
		c.mu.Unlock()

		if !again {
			return
		}
	}
}

// Refresh triggers a manual pass through the same coalescing path, for
// callers outside the change feed (UI pull-to-refresh).
func (c *Coordinator) Refresh() {
	c.onEvent(feed.Event{Kind: feed.KindUpdate, OwnerID: c.cfg.OwnerID, At: c.now()})
}

// Stop tears the scope down: the subscription closes and any in-flight
// refresh completes without publishing.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.state == StateUnsubscribed {
		c.mu.Unlock()
		return
	}
	c.state = StateUnsubscribed
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("Failed to close feed subscription", "error", err)
		}
	}
}

// Latest returns the most recently published snapshot, nil before Start.
func (c *Coordinator) Latest() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// State reports the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) compute(ctx context.Context, records []core.DebtRecord) Snapshot {
	display := c.cfg.Display(ctx)
	return Snapshot{
		Totals:     c.agg.Totals(ctx, records, c.cfg.UserName, display),
		Persons:    c.agg.PersonSummaries(ctx, records, c.cfg.UserName, display),
		Insights:   ledger.ComputeInsights(records, c.now()),
		ComputedAt: c.now(),
	}
}
