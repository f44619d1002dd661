package ws

import (
	"encoding/json"
	"time"
)

const (
	EventSnapshot  = "auctions/snapshot"
	EventBidUpdate = "auctions/bid_update"
	EventBid       = "auctions/bid"
	EventError     = "error"

	ackSuffix = "-ack"
)

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// BidRequest is the body for "auctions/bid".
type BidRequest struct {
	Amount int64 `json:"amount"`
}

// BidAck answers an accepted "auctions/bid".
type BidAck struct {
	BidID  string `json:"bid_id"`
	Amount int64  `json:"amount"`
}

// BidUpdateBody is pushed to a room after any accepted bid.
type BidUpdateBody struct {
	AuctionID string    `json:"auction_id"`
	NewBid    int64     `json:"new_bid"`
	BidID     string    `json:"bid_id,omitempty"`
	UserID    string    `json:"user_id,omitempty"`
	At        time.Time `json:"at"`
}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
