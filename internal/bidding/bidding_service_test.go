package bidding

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"livebid/internal/events"
	"livebid/internal/events/localbus"
	"livebid/internal/models"
	"livebid/internal/storage"
	"livebid/internal/storage/memstore"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2025, 7, 27, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

func seedAuction(t *testing.T, repo *memstore.MemoryRepo, id string, startPrice int64, start *time.Time, end time.Time) {
	t.Helper()
	require.NoError(t, repo.CreateAuction(context.Background(), &models.Auction{
		ID:         id,
		Title:      id,
		StartPrice: startPrice,
		CurrentBid: startPrice,
		StartTime:  start,
		EndTime:    end,
		Status:     models.StatusOngoing,
		BidIDs:     []string{},
		CreatedAt:  t0,
	}))
}

func TestBiddingService_SubmitBid_Sequential(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memstore.New()
	seedAuction(t, repo, "auc1", 100, nil, t0.Add(time.Hour))
	svc := NewBiddingService(repo, localbus.New(), WithClock(fixedClock))

	_, err := svc.SubmitBid(ctx, "auc1", "user1", 100)
	require.ErrorIs(t, err, ErrTooLow)
	require.Equal(t, ReasonTooLow, Reason(err))

	bid, err := svc.SubmitBid(ctx, "auc1", "user1", 150)
	require.NoError(t, err)
	_, parseErr := uuid.Parse(bid.ID)
	require.NoError(t, parseErr, "bid id should be a valid UUID")
	require.Equal(t, "auc1", bid.AuctionID)
	require.Equal(t, "user1", bid.UserID)
	require.Equal(t, int64(150), bid.Amount)
	require.Equal(t, t0, bid.CreatedAt)

	a, err := repo.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	require.Equal(t, int64(150), a.CurrentBid)
	require.Equal(t, []string{bid.ID}, a.BidIDs)
	require.Equal(t, 1, repo.BidCount())
}

func TestBiddingService_SubmitBid_Rejections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	future := t0.Add(time.Hour)
	past := t0.Add(-2 * time.Hour)

	repo := memstore.New()
	seedAuction(t, repo, "open", 100, nil, t0.Add(time.Hour))
	seedAuction(t, repo, "upcoming", 100, &future, t0.Add(2*time.Hour))
	seedAuction(t, repo, "ended", 100, &past, t0)
	svc := NewBiddingService(repo, nil, WithClock(fixedClock))

	tests := []struct {
		name      string
		auctionID string
		userID    string
		amount    int64
		wantErr   error
		reason    string
	}{
		{name: "missing_auction", auctionID: "nope", userID: "u1", amount: 500, wantErr: ErrNotFound, reason: ReasonNotFound},
		{name: "not_started", auctionID: "upcoming", userID: "u1", amount: 1_000_000, wantErr: ErrNotStarted, reason: ReasonNotStarted},
		{name: "expired_at_end_time", auctionID: "ended", userID: "u1", amount: 1_000_000, wantErr: ErrExpired, reason: ReasonExpired},
		{name: "too_low", auctionID: "open", userID: "u1", amount: 99, wantErr: ErrTooLow, reason: ReasonTooLow},
		{name: "empty_user", auctionID: "open", userID: "", amount: 150, wantErr: ErrInvalidBid, reason: ReasonInvalidBid},
		{name: "empty_auction", auctionID: "", userID: "u1", amount: 150, wantErr: ErrInvalidBid, reason: ReasonInvalidBid},
		{name: "zero_amount", auctionID: "open", userID: "u1", amount: 0, wantErr: ErrTooLow, reason: ReasonTooLow},
		{name: "negative_amount", auctionID: "open", userID: "u1", amount: -5, wantErr: ErrTooLow, reason: ReasonTooLow},
		{name: "zero_amount_not_started", auctionID: "upcoming", userID: "u1", amount: 0, wantErr: ErrNotStarted, reason: ReasonNotStarted},
		{name: "negative_amount_expired", auctionID: "ended", userID: "u1", amount: -5, wantErr: ErrExpired, reason: ReasonExpired},
		{name: "zero_amount_missing_auction", auctionID: "nope", userID: "u1", amount: 0, wantErr: ErrNotFound, reason: ReasonNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			bid, err := svc.SubmitBid(ctx, tc.auctionID, tc.userID, tc.amount)
			require.Nil(t, bid)
			require.ErrorIs(t, err, tc.wantErr)
			require.Equal(t, tc.reason, Reason(err))
			require.True(t, IsRejection(err))
		})
	}

	require.Zero(t, repo.BidCount(), "fast-path rejections never persist a candidate")
}

func TestBiddingService_EqualAmountRace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memstore.New()
	seedAuction(t, repo, "auc1", 100, nil, t0.Add(time.Hour))
	svc := NewBiddingService(repo, nil, WithClock(fixedClock))

	_, err := svc.SubmitBid(ctx, "auc1", "user0", 150)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitBid(ctx, "auc1", "racer", 200)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.True(t, errors.Is(err, ErrTooLow) || errors.Is(err, ErrRejected), "unexpected error: %v", err)
	}
	require.Equal(t, 1, accepted)

	a, err := repo.GetAuction(ctx, "auc1")
	require.NoError(t, err)
	require.Equal(t, int64(200), a.CurrentBid)
	require.Len(t, a.BidIDs, 2)
	require.Equal(t, 2, repo.BidCount(), "loser's candidate must be removed")
}

func TestBiddingService_ConcurrentSubmissions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memstore.New()
	seedAuction(t, repo, "auc1", 100, nil, t0.Add(time.Hour))
	bus := localbus.New()
	sub, err := bus.Subscribe(ctx, "auc1")
	require.NoError(t, err)
	defer sub.Close()

	svc := NewBiddingService(repo, bus, WithClock(fixedClock))

	const n = 64
	amounts := make([]int64, n)
	for i := range amounts {
		// duplicates on purpose
		amounts[i] = 101 + int64(i%20)*10
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted []int64
		failures []error
	)
	for _, amt := range amounts {
		wg.Add(1)
		go func(amt int64) {
			defer wg.Done()
			bid, err := svc.SubmitBid(ctx, "auc1", uuid.NewString(), amt)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return
			}
			accepted = append(accepted, bid.Amount)
		}(amt)
	}
	wg.Wait()

	for _, err := range failures {
		require.True(t, errors.Is(err, ErrTooLow) || errors.Is(err, ErrRejected), "unexpected error: %v", err)
	}
	require.Len(t, accepted, n-len(failures))

	a, err := repo.GetAuction(ctx, "auc1")
	require.NoError(t, err)

	bids, err := repo.ListBids(ctx, "auc1")
	require.NoError(t, err)
	require.Len(t, bids, len(accepted))

	// acceptance order is strictly increasing
	prev := int64(100)
	for _, b := range bids {
		require.Greater(t, b.Amount, prev)
		prev = b.Amount
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i] < accepted[j] })
	require.Equal(t, accepted[len(accepted)-1], a.CurrentBid)
	require.Equal(t, int64(291), a.CurrentBid, "the maximum amount always wins eventually")

	// no orphans
	require.Equal(t, len(a.BidIDs), repo.BidCount())
	require.Len(t, sub.Events(), len(accepted))
}

func TestBiddingService_NotifiesSubscribers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memstore.New()
	seedAuction(t, repo, "auc1", 100, nil, t0.Add(time.Hour))
	bus := localbus.New()
	sub, err := bus.Subscribe(ctx, "auc1")
	require.NoError(t, err)
	defer sub.Close()

	svc := NewBiddingService(repo, bus, WithClock(fixedClock), WithIDGenerator(func() string { return "bid-1" }))
	_, err = svc.SubmitBid(ctx, "auc1", "user1", 150)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		require.Equal(t, events.BidUpdate("auc1", "bid-1", "user1", 150, t0), ev)
	case <-time.After(time.Second):
		t.Fatal("no bid_update event")
	}
}

// state returned by the mocked store's GetAuction
func openAuction(currentBid int64, end time.Time) *models.Auction {
	return &models.Auction{ID: "auc1", StartPrice: 100, CurrentBid: currentBid, EndTime: end, Status: models.StatusOngoing}
}

func TestBiddingService_LostRaceClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		fresh    *models.Auction
		freshErr error
		wantErr  error
	}{
		{name: "outbid_meanwhile", fresh: openAuction(300, t0.Add(time.Hour)), wantErr: ErrTooLow},
		{name: "ended_meanwhile", fresh: openAuction(100, t0), wantErr: ErrExpired},
		{name: "unexplained", fresh: openAuction(100, t0.Add(time.Hour)), wantErr: ErrRejected},
		{name: "vanished", freshErr: storage.ErrNotFound, wantErr: ErrNotFound},
		{name: "reread_failed", freshErr: errors.New("timeout"), wantErr: ErrRejected},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			store := NewMockStore(ctrl)
			pub := NewMockPublisher(ctrl)
			svc := NewBiddingService(store, pub, WithClock(fixedClock), WithIDGenerator(func() string { return "bid-1" }))

			gomock.InOrder(
				store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(openAuction(100, t0.Add(time.Hour)), nil),
				store.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(nil),
				store.EXPECT().AcceptBid(gomock.Any(), storage.AcceptBidParams{
					AuctionID: "auc1", BidID: "bid-1", Amount: 200, Now: t0,
				}).Return(false, nil),
				store.EXPECT().DeleteBid(gomock.Any(), "bid-1").Return(nil),
				store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(tc.fresh, tc.freshErr),
			)

			bid, err := svc.SubmitBid(context.Background(), "auc1", "user1", 200)
			require.Nil(t, bid)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestBiddingService_StoreFailures(t *testing.T) {
	t.Parallel()

	t.Run("create_candidate_fails", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := NewMockStore(ctrl)
		svc := NewBiddingService(store, nil, WithClock(fixedClock))

		store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(openAuction(100, t0.Add(time.Hour)), nil)
		store.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

		_, err := svc.SubmitBid(context.Background(), "auc1", "user1", 200)
		require.Error(t, err)
		require.False(t, IsRejection(err))
	})

	t.Run("conditional_update_fails", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := NewMockStore(ctrl)
		svc := NewBiddingService(store, nil, WithClock(fixedClock), WithIDGenerator(func() string { return "bid-1" }))

		store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(openAuction(100, t0.Add(time.Hour)), nil)
		store.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(nil)
		store.EXPECT().AcceptBid(gomock.Any(), gomock.Any()).Return(false, errors.New("connection reset"))
		store.EXPECT().DeleteBid(gomock.Any(), "bid-1").Return(nil)

		_, err := svc.SubmitBid(context.Background(), "auc1", "user1", 200)
		require.Error(t, err)
		require.False(t, IsRejection(err))
	})

	t.Run("load_fails", func(t *testing.T) {
		t.Parallel()
		ctrl := gomock.NewController(t)
		store := NewMockStore(ctrl)
		svc := NewBiddingService(store, nil, WithClock(fixedClock))

		store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(nil, errors.New("connection reset"))

		_, err := svc.SubmitBid(context.Background(), "auc1", "user1", 200)
		require.Error(t, err)
		require.False(t, IsRejection(err))
	})
}

func TestBiddingService_PublishFailureKeepsBid(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	pub := NewMockPublisher(ctrl)
	svc := NewBiddingService(store, pub, WithClock(fixedClock), WithIDGenerator(func() string { return "bid-1" }))

	store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(openAuction(100, t0.Add(time.Hour)), nil)
	store.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(nil)
	store.EXPECT().AcceptBid(gomock.Any(), gomock.Any()).Return(true, nil)
	pub.EXPECT().Publish(gomock.Any(), events.BidUpdate("auc1", "bid-1", "user1", 200, t0)).Return(errors.New("broker down"))

	bid, err := svc.SubmitBid(context.Background(), "auc1", "user1", 200)
	require.NoError(t, err)
	require.Equal(t, "bid-1", bid.ID)
}

// Not parallel: swaps the global logger.
func TestBiddingService_CleanupFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	ctrl := gomock.NewController(t)
	store := NewMockStore(ctrl)
	svc := NewBiddingService(store, nil, WithClock(fixedClock), WithIDGenerator(func() string { return "bid-1" }))

	gomock.InOrder(
		store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(openAuction(100, t0.Add(time.Hour)), nil),
		store.EXPECT().CreateBid(gomock.Any(), gomock.Any()).Return(nil),
		store.EXPECT().AcceptBid(gomock.Any(), gomock.Any()).Return(false, nil),
		store.EXPECT().DeleteBid(gomock.Any(), "bid-1").Return(errors.New("store unreachable")),
		store.EXPECT().GetAuction(gomock.Any(), "auc1").Return(openAuction(250, t0.Add(time.Hour)), nil),
	)

	_, err := svc.SubmitBid(context.Background(), "auc1", "user1", 200)
	require.ErrorIs(t, err, ErrTooLow, "cleanup failure does not change the outcome")

	entries := logs.FilterMessage("bidding.cleanup_failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, "bid-1", entries[0].ContextMap()["bid_id"])
}
