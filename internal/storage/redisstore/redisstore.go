package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"livebid/internal/models"
	"livebid/internal/storage"

	"github.com/redis/go-redis/v9"
)

const (
	indexKey = "aucs:index"
	openKey  = "aucs:open"

	fnPlaceBid      = "auction_place_bid"
	fnAdvanceStatus = "auction_advance_status"

	// StartTimerPrefix and EndTimerPrefix name keys that expire at an
	// auction's start and end time. The expiry watcher listens for them.
	StartTimerPrefix = "auc_s:"
	EndTimerPrefix   = "auc_t:"
)

func auctionKey(id string) string { return "auc:" + id }
func bidsKey(id string) string    { return "auc:" + id + ":bids" }
func bidKey(id string) string     { return "bid:" + id }

// RedisStore keeps auctions in Redis hashes. Bid acceptance and status
// advance run as Lua functions from the livebid library, so the check and
// the write happen inside one server-side call.
type RedisStore struct {
	rdb redis.Cmdable
	now func() time.Time
}

var _ storage.Store = (*RedisStore)(nil)

type Option func(*RedisStore)

// WithClock sets the clock stamped on status changes as updated_ms.
func WithClock(now func() time.Time) Option {
	return func(s *RedisStore) { s.now = now }
}

func New(rdb redis.Cmdable, opts ...Option) *RedisStore {
	s := &RedisStore{rdb: rdb, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *RedisStore) CreateAuction(ctx context.Context, a *models.Auction) error {
	n, err := s.rdb.Exists(ctx, auctionKey(a.ID)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: create auction %s: %w", a.ID, err)
	}
	if n > 0 {
		return fmt.Errorf("redisstore: create auction %s: already exists", a.ID)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, auctionKey(a.ID), auctionFields(a)...)
		pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(a.CreatedAt.UnixMilli()), Member: a.ID})
		if a.Status != models.StatusCompleted {
			pipe.SAdd(ctx, openKey, a.ID)
		}
		if a.StartTime != nil && a.Status == models.StatusUpcoming {
			pipe.Set(ctx, StartTimerPrefix+a.ID, "1", 0)
			pipe.PExpireAt(ctx, StartTimerPrefix+a.ID, *a.StartTime)
		}
		pipe.Set(ctx, EndTimerPrefix+a.ID, "1", 0)
		pipe.PExpireAt(ctx, EndTimerPrefix+a.ID, a.EndTime)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: create auction %s: %w", a.ID, err)
	}
	return nil
}

func (s *RedisStore) GetAuction(ctx context.Context, id string) (*models.Auction, error) {
	h, err := s.rdb.HGetAll(ctx, auctionKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: get auction %s: %w", id, err)
	}
	if len(h) == 0 {
		return nil, fmt.Errorf("redisstore: auction %s: %w", id, storage.ErrNotFound)
	}
	bidIDs, err := s.rdb.LRange(ctx, bidsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: auction %s bids: %w", id, err)
	}
	a, err := parseAuction(h)
	if err != nil {
		return nil, fmt.Errorf("redisstore: auction %s: %w", id, err)
	}
	a.BidIDs = append(make([]string, 0, len(bidIDs)), bidIDs...)
	return a, nil
}

// ListAuctions walks the creation index newest first. With a status filter
// the whole index is scanned, since status lives inside each hash.
func (s *RedisStore) ListAuctions(ctx context.Context, f storage.ListFilter) ([]models.Auction, error) {
	f = f.Normalize()

	if f.Status == "" {
		ids, err := s.rdb.ZRevRange(ctx, indexKey, int64(f.Offset), int64(f.Offset+f.Limit-1)).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: list auctions: %w", err)
		}
		return s.loadAll(ctx, ids, nil)
	}

	ids, err := s.rdb.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list auctions: %w", err)
	}
	matched, err := s.loadAll(ctx, ids, func(a *models.Auction) bool { return a.Status == f.Status })
	if err != nil {
		return nil, err
	}
	if f.Offset >= len(matched) {
		return []models.Auction{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], nil
}

func (s *RedisStore) ListOpenAuctions(ctx context.Context) ([]models.Auction, error) {
	ids, err := s.rdb.SMembers(ctx, openKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list open auctions: %w", err)
	}
	return s.loadAll(ctx, ids, func(a *models.Auction) bool { return a.Status != models.StatusCompleted })
}

func (s *RedisStore) AdvanceStatus(ctx context.Context, id string, from, to models.Status) (bool, error) {
	n, err := s.rdb.FCall(ctx, fnAdvanceStatus,
		[]string{auctionKey(id), openKey},
		id, string(from), string(to), s.now().UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redisstore: advance status %s: %w", id, err)
	}
	return n == 1, nil
}

func (s *RedisStore) CreateBid(ctx context.Context, b *models.Bid) error {
	err := s.rdb.HSet(ctx, bidKey(b.ID),
		"id", b.ID,
		"auction_id", b.AuctionID,
		"user_id", b.UserID,
		"amount", b.Amount,
		"created_ms", b.CreatedAt.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("redisstore: create bid %s: %w", b.ID, err)
	}
	return nil
}

func (s *RedisStore) DeleteBid(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, bidKey(id)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete bid %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) AcceptBid(ctx context.Context, p storage.AcceptBidParams) (bool, error) {
	n, err := s.rdb.FCall(ctx, fnPlaceBid,
		[]string{auctionKey(p.AuctionID), bidsKey(p.AuctionID)},
		p.BidID, p.Amount, p.Now.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redisstore: accept bid %s: %w", p.BidID, err)
	}
	return n == 1, nil
}

func (s *RedisStore) ListBids(ctx context.Context, auctionID string) ([]models.Bid, error) {
	a, err := s.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Bid, 0, len(a.BidIDs))
	for _, id := range a.BidIDs {
		h, err := s.rdb.HGetAll(ctx, bidKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: bid %s: %w", id, err)
		}
		if len(h) == 0 {
			continue
		}
		b, err := parseBid(h)
		if err != nil {
			return nil, fmt.Errorf("redisstore: bid %s: %w", id, err)
		}
		out = append(out, *b)
	}
	return out, nil
}

func (s *RedisStore) loadAll(ctx context.Context, ids []string, keep func(*models.Auction) bool) ([]models.Auction, error) {
	out := make([]models.Auction, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAuction(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(a) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

// auctionFields lists hash fields in a fixed order. An unset start time is
// stored as an absent start_ms field.
func auctionFields(a *models.Auction) []any {
	f := []any{
		"id", a.ID,
		"title", a.Title,
		"description", a.Description,
		"image", a.Image,
		"start_price", a.StartPrice,
		"current_bid", a.CurrentBid,
		"end_ms", a.EndTime.UnixMilli(),
		"status", string(a.Status),
		"created_ms", a.CreatedAt.UnixMilli(),
		"updated_ms", a.UpdatedAt.UnixMilli(),
	}
	if a.StartTime != nil {
		f = append(f, "start_ms", a.StartTime.UnixMilli())
	}
	return f
}

func parseAuction(h map[string]string) (*models.Auction, error) {
	var (
		a   = &models.Auction{ID: h["id"], Title: h["title"], Description: h["description"], Image: h["image"]}
		err error
	)
	a.Status = models.Status(h["status"])
	if a.StartPrice, err = strconv.ParseInt(h["start_price"], 10, 64); err != nil {
		return nil, fmt.Errorf("start_price: %w", err)
	}
	if a.CurrentBid, err = strconv.ParseInt(h["current_bid"], 10, 64); err != nil {
		return nil, fmt.Errorf("current_bid: %w", err)
	}
	if a.EndTime, err = parseMillis(h["end_ms"]); err != nil {
		return nil, fmt.Errorf("end_ms: %w", err)
	}
	if a.CreatedAt, err = parseMillis(h["created_ms"]); err != nil {
		return nil, fmt.Errorf("created_ms: %w", err)
	}
	if a.UpdatedAt, err = parseMillis(h["updated_ms"]); err != nil {
		return nil, fmt.Errorf("updated_ms: %w", err)
	}
	if v, ok := h["start_ms"]; ok && v != "" {
		st, err := parseMillis(v)
		if err != nil {
			return nil, fmt.Errorf("start_ms: %w", err)
		}
		a.StartTime = &st
	}
	return a, nil
}

func parseBid(h map[string]string) (*models.Bid, error) {
	amount, err := strconv.ParseInt(h["amount"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	at, err := parseMillis(h["created_ms"])
	if err != nil {
		return nil, fmt.Errorf("created_ms: %w", err)
	}
	return &models.Bid{
		ID:        h["id"],
		AuctionID: h["auction_id"],
		UserID:    h["user_id"],
		Amount:    amount,
		CreatedAt: at,
	}, nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
