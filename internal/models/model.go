package models

import "time"

// Status is the persisted lifecycle state of an auction.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// Rank orders statuses along the lifecycle. Unknown values rank below upcoming.
func (s Status) Rank() int {
	switch s {
	case StatusUpcoming:
		return 1
	case StatusOngoing:
		return 2
	case StatusCompleted:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool { return s.Rank() > 0 }

// Auction is a time-boxed sale. Money fields are minor currency units.
type Auction struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Image       string     `json:"image"`
	StartPrice  int64      `json:"start_price"`
	CurrentBid  int64      `json:"current_bid"`
	StartTime   *time.Time `json:"start_time,omitempty" example:"2025-07-27T16:05:05Z"`
	EndTime     time.Time  `json:"end_time"             example:"2025-07-27T18:05:05Z"`
	Status      Status     `json:"status"               example:"ongoing"`
	BidIDs      []string   `json:"bids"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Bid is a single amount submitted by a user against an auction.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
