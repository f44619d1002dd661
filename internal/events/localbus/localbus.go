package localbus

import (
	"context"
	"sync"

	"livebid/internal/events"

	"go.uber.org/zap"
)

const subBuffer = 32

// Bus fans events out to subscribers inside one process.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}
}

var _ events.Bus = (*Bus)(nil)

func New() *Bus {
	return &Bus{topics: make(map[string]map[*subscription]struct{})}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (b *Bus) Publish(_ context.Context, e events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.topics[e.AuctionID] {
		select {
		case s.ch <- e:
		default:
			zap.L().Warn("localbus.subscriber_full", zap.String("auction_id", e.AuctionID))
		}
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, auctionID string) (events.Subscription, error) {
	s := &subscription{bus: b, auctionID: auctionID, ch: make(chan events.Event, subBuffer)}

	b.mu.Lock()
	if b.topics[auctionID] == nil {
		b.topics[auctionID] = make(map[*subscription]struct{})
	}
	b.topics[auctionID][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

func (b *Bus) Close() error { return nil }

func (b *Bus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[s.auctionID]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(b.topics, s.auctionID)
	}
	close(s.ch)
}

type subscription struct {
	bus       *Bus
	auctionID string
	ch        chan events.Event
	once      sync.Once
}

func (s *subscription) Events() <-chan events.Event { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() { s.bus.remove(s) })
	return nil
}
