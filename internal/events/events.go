package events

import (
	"context"
	"encoding/json"
	"time"
)

const TypeBidUpdate = "bid_update"

// Event is a hint that an auction changed. Consumers re-read the auction for
// the authoritative current bid; delivery may repeat or reorder.
type Event struct {
	Type      string    `json:"event"`
	AuctionID string    `json:"auction_id"`
	NewBid    int64     `json:"new_bid"`
	BidID     string    `json:"bid_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}

// BidUpdate builds the event raised after a bid is accepted.
func BidUpdate(auctionID, bidID, userID string, amount int64, at time.Time) Event {
	return Event{
		Type:      TypeBidUpdate,
		AuctionID: auctionID,
		NewBid:    amount,
		BidID:     bidID,
		UserID:    userID,
		At:        at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscription delivers events for one auction until Close is called.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, auctionID string) (Subscription, error)
}

// Bus is a publish/subscribe channel keyed by auction id.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

func Encode(e Event) ([]byte, error) { return json.Marshal(e) }

func Decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, err
}
