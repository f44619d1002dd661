package ws

import (
	"context"
	"encoding/json"
	"sync"

	"livebid/internal/events"

	"go.uber.org/zap"
)

// subscriptionManager guarantees that we have exactly one bus subscription
// per auction, no matter how many websocket clients join the same room.
type subscriptionManager struct {
	bus  events.Subscriber
	hub  *Hub
	mu   sync.Mutex
	subs map[string]*subEntry // auctionID -> subscription data
}

type subEntry struct {
	refCnt int
	sub    events.Subscription
	err    error
	ready  chan struct{} // closed once sub or err is set
	done   chan struct{} // closed when forward returns
}

func newSubscriptionManager(bus events.Subscriber, hub *Hub) *subscriptionManager {
	return &subscriptionManager{
		bus:  bus,
		hub:  hub,
		subs: make(map[string]*subEntry),
	}
}

// Subscribe ensures that the process is subscribed to the auction's topic;
// subsequent calls for the same auction only increment the ref-counter.
// The bus call runs outside sm.mu, so a slow broker only holds up clients
// of the same auction, and those can give up through ctx.
func (sm *subscriptionManager) Subscribe(ctx context.Context, auctionID string) error {
	sm.mu.Lock()
	if e, ok := sm.subs[auctionID]; ok {
		e.refCnt++
		sm.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			sm.drop(auctionID, e)
			return ctx.Err()
		}
		return e.err
	}
	e := &subEntry{refCnt: 1, ready: make(chan struct{}), done: make(chan struct{})}
	sm.subs[auctionID] = e
	sm.mu.Unlock()

	sub, err := sm.bus.Subscribe(ctx, auctionID)
	if err != nil {
		sm.mu.Lock()
		if sm.subs[auctionID] == e {
			delete(sm.subs, auctionID)
		}
		e.err = err
		sm.mu.Unlock()
		close(e.ready)
		close(e.done)
		return err
	}
	e.sub = sub
	go sm.forward(auctionID, e)
	close(e.ready)
	return nil
}

func (sm *subscriptionManager) forward(auctionID string, e *subEntry) {
	defer close(e.done)
	for ev := range e.sub.Events() {
		msg, err := wrapEvent(ev)
		if err != nil {
			zap.L().Warn("ws.wrap_event_failed", zap.String("auction_id", auctionID), zap.Error(err))
			continue
		}
		sm.hub.Broadcast(auctionID, msg)
	}
}

// Unsubscribe decrements the ref-counter and tears the subscription down
// when the last websocket client leaves the room. It returns after the
// forwarding goroutine has stopped.
func (sm *subscriptionManager) Unsubscribe(auctionID string) {
	sm.mu.Lock()
	e, ok := sm.subs[auctionID]
	sm.mu.Unlock()
	if ok {
		sm.drop(auctionID, e)
	}
}

// drop releases one reference on e. The last reference of the entry still
// mapped for auctionID closes the subscription.
func (sm *subscriptionManager) drop(auctionID string, e *subEntry) {
	sm.mu.Lock()
	e.refCnt--
	if e.refCnt > 0 || sm.subs[auctionID] != e {
		sm.mu.Unlock()
		return
	}
	delete(sm.subs, auctionID)
	sm.mu.Unlock()

	<-e.ready
	if e.sub == nil {
		return
	}
	if err := e.sub.Close(); err != nil {
		zap.L().Warn("ws.unsubscribe_failed", zap.String("auction_id", auctionID), zap.Error(err))
	}
	<-e.done
}

func (sm *subscriptionManager) active(auctionID string) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if e, ok := sm.subs[auctionID]; ok {
		return e.refCnt
	}
	return 0
}

// wrapEvent turns a bus event into the public envelope
//
//	{"event":"auctions/bid_update","body":{"auction_id":"a1","new_bid":150,...}}
func wrapEvent(ev events.Event) ([]byte, error) {
	body, err := json.Marshal(BidUpdateBody{
		AuctionID: ev.AuctionID,
		NewBid:    ev.NewBid,
		BidID:     ev.BidID,
		UserID:    ev.UserID,
		At:        ev.At,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: EventBidUpdate, Body: body})
}
