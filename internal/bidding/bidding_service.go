package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"livebid/internal/events"
	"livebid/internal/lifecycle"
	"livebid/internal/models"
	"livebid/internal/storage"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// cleanupTimeout bounds the synchronous candidate removal after a lost race.
const cleanupTimeout = 2 * time.Second

//go:generate mockgen -destination=mocks.go -package=bidding -self_package=livebid/internal/bidding livebid/internal/bidding Store,Publisher

// Store is the slice of storage the engine drives.
type Store interface {
	storage.BidStore
}

// Publisher receives bid-accepted events.
type Publisher interface {
	events.Publisher
}

// BiddingService decides which submission becomes an auction's current bid.
// The only write to current_bid and bids is Store.AcceptBid.
type BiddingService struct {
	store Store
	pub   Publisher
	clock func() time.Time
	newID func() string
}

type Option func(*BiddingService)

func WithClock(clock func() time.Time) Option {
	return func(s *BiddingService) { s.clock = clock }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *BiddingService) { s.newID = gen }
}

func NewBiddingService(store Store, pub Publisher, opts ...Option) *BiddingService {
	s := &BiddingService{
		store: store,
		pub:   pub,
		clock: func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitBid places amount (minor units) on behalf of userID.
//
// The fast-path checks only produce early feedback. The decision is the
// store's conditional update; a candidate that loses it is deleted before
// SubmitBid returns and the auction is re-read to explain the loss.
func (s *BiddingService) SubmitBid(ctx context.Context, auctionID, userID string, amount int64) (*models.Bid, error) {
	if auctionID == "" || userID == "" {
		return nil, fmt.Errorf("%w: missing auction or user id", ErrInvalidBid)
	}

	a, err := s.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	if err := checkWindow(now, a); err != nil {
		return nil, err
	}
	// current_bid never drops below start_price >= 0, so a non-positive
	// amount always ends here.
	if amount <= a.CurrentBid {
		return nil, fmt.Errorf("%w: current bid is %d", ErrTooLow, a.CurrentBid)
	}

	bid := &models.Bid{
		ID:        s.newID(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		CreatedAt: now,
	}
	if err := s.store.CreateBid(ctx, bid); err != nil {
		return nil, fmt.Errorf("bidding: create candidate bid: %w", err)
	}

	won, err := s.store.AcceptBid(ctx, storage.AcceptBidParams{
		AuctionID: auctionID,
		BidID:     bid.ID,
		Amount:    amount,
		Now:       now,
	})
	if err != nil {
		s.discard(ctx, bid)
		return nil, fmt.Errorf("bidding: accept bid: %w", err)
	}
	if !won {
		s.discard(ctx, bid)
		return nil, s.classifyLoss(ctx, auctionID, amount, now)
	}

	s.notify(ctx, bid)
	return bid, nil
}

func (s *BiddingService) load(ctx context.Context, auctionID string) (*models.Auction, error) {
	a, err := s.store.GetAuction(ctx, auctionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, auctionID)
	}
	if err != nil {
		return nil, fmt.Errorf("bidding: load auction %s: %w", auctionID, err)
	}
	return a, nil
}

func checkWindow(now time.Time, a *models.Auction) error {
	switch err := lifecycle.CheckOpen(now, a.StartTime, a.EndTime); {
	case errors.Is(err, lifecycle.ErrNotStarted):
		return ErrNotStarted
	case errors.Is(err, lifecycle.ErrEnded):
		return ErrExpired
	default:
		return err
	}
}

// classifyLoss explains a failed conditional update from fresh state.
func (s *BiddingService) classifyLoss(ctx context.Context, auctionID string, amount int64, now time.Time) error {
	fresh, err := s.load(ctx, auctionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		zap.L().Warn("bidding.reread_failed", zap.String("auction_id", auctionID), zap.Error(err))
		return ErrRejected
	}
	if lifecycle.Ended(now, fresh.EndTime) {
		return ErrExpired
	}
	if amount <= fresh.CurrentBid {
		return fmt.Errorf("%w: current bid is %d", ErrTooLow, fresh.CurrentBid)
	}
	return ErrRejected
}

// discard removes a candidate that did not win. Failure is logged only; the
// caller still sees the original outcome.
func (s *BiddingService) discard(ctx context.Context, bid *models.Bid) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := s.store.DeleteBid(ctx, bid.ID); err != nil {
		zap.L().Error("bidding.cleanup_failed",
			zap.String("bid_id", bid.ID),
			zap.String("auction_id", bid.AuctionID),
			zap.Error(err),
		)
	}
}

// notify is best-effort: the bid stays accepted whatever happens here.
func (s *BiddingService) notify(ctx context.Context, bid *models.Bid) {
	if s.pub == nil {
		return
	}
	ev := events.BidUpdate(bid.AuctionID, bid.ID, bid.UserID, bid.Amount, bid.CreatedAt)
	if err := s.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		zap.L().Warn("bidding.publish_failed",
			zap.String("auction_id", bid.AuctionID),
			zap.String("bid_id", bid.ID),
			zap.Error(err),
		)
	}
}
