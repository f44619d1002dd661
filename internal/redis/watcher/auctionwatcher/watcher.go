package auctionwatcher

import (
	"context"
	"strings"

	"livebid/internal/models"
	"livebid/internal/storage/redisstore"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const expiredPattern = "__keyevent@*__:expired"

// Refresher re-evaluates one auction's status.
type Refresher interface {
	Refresh(ctx context.Context, id string) (*models.Auction, error)
}

// AuctionID extracts the auction id from an expired timer key.
func AuctionID(key string) (string, bool) {
	for _, p := range []string{redisstore.StartTimerPrefix, redisstore.EndTimerPrefix} {
		if strings.HasPrefix(key, p) {
			id := strings.TrimPrefix(key, p)
			return id, id != ""
		}
	}
	return "", false
}

// Handle refreshes the auction behind one expired key. Unrelated keys are ignored.
func Handle(ctx context.Context, r Refresher, key string) {
	id, ok := AuctionID(key)
	if !ok {
		return
	}
	a, err := r.Refresh(ctx, id)
	if err != nil {
		zap.L().Warn("auctionwatcher.refresh_failed", zap.String("auction_id", id), zap.Error(err))
		return
	}
	zap.L().Debug("auctionwatcher.refreshed",
		zap.String("auction_id", id),
		zap.String("status", string(a.Status)),
	)
}

// Run listens to key-expiry events and moves auctions to their next status
// as soon as a start or end timer fires, ahead of the periodic sweep.
// Run blocks until ctx is cancelled.
func Run(ctx context.Context, rdb *redis.Client, r Refresher) {
	if err := rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		zap.L().Warn("auctionwatcher.config_set", zap.Error(err))
	}
	ps := rdb.PSubscribe(ctx, expiredPattern)
	defer ps.Close()

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			Handle(ctx, r, m.Payload)
		}
	}
}
