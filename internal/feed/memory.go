package feed

import (
	"context"
	"sync"
)

// Bus is the in-process feed backend, the default for single-binary
// deployments and tests. Dispatch is synchronous: Publish returns after
// every matching subscriber callback has run.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[string]map[int]func(Event) // owner -> sub id -> callback
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]func(Event))}
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs[e.OwnerID]))
	for _, fn := range b.subs[e.OwnerID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, ownerID string, fn func(Event)) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[int]func(Event))
	}
	id := b.next
	b.next++
	b.subs[ownerID][id] = fn

	return &busSub{bus: b, ownerID: ownerID, id: id}, nil
}

type busSub struct {
	bus     *Bus
	ownerID string
	id      int
	once    sync.Once
}

func (s *busSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		defer s.bus.mu.Unlock()
		delete(s.bus.subs[s.ownerID], s.id)
	})
	return nil
}
