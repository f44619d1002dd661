package redis_client

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 5 * time.Second

// PoolSize scales with the CPU count, capped at 512 connections.
func PoolSize() int {
	n := runtime.NumCPU() * 8
	if n > 512 {
		n = 512
	}
	return n
}

// NewRedisClient dials host:port and pings it once. The same client serves
// the redis store, the redis event bus and the expiry watcher.
func NewRedisClient(ctx context.Context, host string, port int) (*redis.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: PoolSize(),
	})

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		_ = rc.Close()
		zap.L().Error("redis_connect", zap.String("addr", addr), zap.Error(err))
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	zap.L().Info("redis_connected", zap.String("addr", addr))
	return rc, nil
}
