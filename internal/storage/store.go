package storage

import (
	"context"
	"errors"
	"time"

	"livebid/internal/models"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// ListFilter narrows ListAuctions. A zero Status matches every auction.
type ListFilter struct {
	Status models.Status
	Limit  int
	Offset int
}

// AcceptBidParams is the input of the conditional bid update.
type AcceptBidParams struct {
	AuctionID string
	BidID     string
	Amount    int64
	Now       time.Time
}

// AuctionReader is the read side shared by every consumer.
type AuctionReader interface {
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
}

// BidStore holds the operations the bid engine drives.
//
// AcceptBid must be a single indivisible operation against the auction record:
// it succeeds only while end_time > Now, start_time <= Now (or unset) and
// current_bid < Amount, and then sets current_bid to Amount and appends BidID
// to the auction's bids. It reports false when the predicate did not match.
type BidStore interface {
	AuctionReader
	CreateBid(ctx context.Context, bid *models.Bid) error
	DeleteBid(ctx context.Context, id string) error
	AcceptBid(ctx context.Context, p AcceptBidParams) (bool, error)
}

// StatusStore is what the lifecycle manager needs. AdvanceStatus writes to
// only when the stored status still equals from.
type StatusStore interface {
	AuctionReader
	ListOpenAuctions(ctx context.Context) ([]models.Auction, error)
	AdvanceStatus(ctx context.Context, id string, from, to models.Status) (bool, error)
}

// Store is implemented by every backend.
type Store interface {
	BidStore
	StatusStore
	CreateAuction(ctx context.Context, a *models.Auction) error
	ListAuctions(ctx context.Context, f ListFilter) ([]models.Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
}

// Normalize clamps pagination to sane bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
