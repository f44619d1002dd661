package auction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"livebid/internal/lifecycle"
	"livebid/internal/models"
	"livebid/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrValidation      = errors.New("validation failed")
)

// CreateAuctionInput is what an administrator submits.
type CreateAuctionInput struct {
	Title       string     `validate:"required,max=200"`
	Description string     `validate:"max=5000"`
	Image       string     `validate:"omitempty,url"`
	StartPrice  int64      `validate:"gte=0"`
	StartTime   *time.Time `validate:"omitempty"`
	EndTime     time.Time  `validate:"required"`
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, in CreateAuctionInput) (*models.Auction, error)
	GetAuction(ctx context.Context, id string) (*models.Auction, error)
	ListAuctions(ctx context.Context, status models.Status, limit, offset int) ([]models.Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]models.Bid, error)
}

// Refresher brings one auction's status up to date on demand.
type Refresher interface {
	Refresh(ctx context.Context, id string) (*models.Auction, error)
}

type auctionService struct {
	store     storage.Store
	refresher Refresher
	validate  *validator.Validate
	clock     func() time.Time
}

var _ IAuctionService = (*auctionService)(nil)

// NewAuctionService wires the read/create side. refresher may be nil, in
// which case reads return the persisted status as is.
func NewAuctionService(store storage.Store, refresher Refresher, clock func() time.Time) IAuctionService {
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &auctionService{
		store:     store,
		refresher: refresher,
		validate:  validator.New(),
		clock:     clock,
	}
}

// CreateAuction validates the input and stores the auction with its
// initial status derived from the time window.
func (svc *auctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*models.Auction, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := svc.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if err := lifecycle.ValidateWindow(in.StartTime, in.EndTime); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	now := svc.clock()
	if !in.EndTime.After(now) {
		return nil, fmt.Errorf("%w: end_time must be in the future", ErrValidation)
	}

	var start *time.Time
	if in.StartTime != nil {
		st := in.StartTime.UTC()
		start = &st
	}
	end := in.EndTime.UTC()

	a := &models.Auction{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Image:       in.Image,
		StartPrice:  in.StartPrice,
		CurrentBid:  in.StartPrice,
		StartTime:   start,
		EndTime:     end,
		Status:      lifecycle.ComputeStatus(now, start, end),
		BidIDs:      []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := svc.store.CreateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	zap.L().Info("auction.created",
		zap.String("auction_id", a.ID),
		zap.String("status", string(a.Status)),
		zap.Time("end_time", a.EndTime),
	)
	return a, nil
}

func (svc *auctionService) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	var (
		a   *models.Auction
		err error
	)
	if svc.refresher != nil {
		a, err = svc.refresher.Refresh(ctx, id)
	} else {
		a, err = svc.store.GetAuction(ctx, id)
	}
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, id)
	}
	return a, err
}

func (svc *auctionService) ListAuctions(ctx context.Context, st models.Status, limit, offset int) ([]models.Auction, error) {
	if st != "" && !st.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, st)
	}
	return svc.store.ListAuctions(ctx, storage.ListFilter{Status: st, Limit: limit, Offset: offset})
}

func (svc *auctionService) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	bids, err := svc.store.ListBids(ctx, auctionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAuctionNotFound, auctionID)
	}
	return bids, err
}
