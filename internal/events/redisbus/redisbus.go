package redisbus

import (
	"context"
	"fmt"
	"sync"

	"livebid/internal/events"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel returns the pub/sub channel of an auction: "auc:<id>:events".
func Channel(auctionID string) string {
	return "auc:" + auctionID + ":events"
}

// Bus publishes over Redis pub/sub so that every instance sees every event.
type Bus struct {
	rdb *redis.Client
}

var _ events.Bus = (*Bus)(nil)

func New(rdb *redis.Client) *Bus { return &Bus{rdb: rdb} }

func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	payload, err := events.Encode(e)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, Channel(e.AuctionID), payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish %s: %w", e.AuctionID, err)
	}
	return nil
}

// Subscribe waits for Redis to confirm the subscription before returning.
func (b *Bus) Subscribe(ctx context.Context, auctionID string) (events.Subscription, error) {
	ps := b.rdb.Subscribe(ctx, Channel(auctionID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisbus: subscribe %s: %w", auctionID, err)
	}

	s := &subscription{ps: ps, ch: make(chan events.Event, 32), done: make(chan struct{})}
	go s.loop()
	return s, nil
}

// Close is a no-op: the client is owned by the caller.
func (b *Bus) Close() error { return nil }

type subscription struct {
	ps   *redis.PubSub
	ch   chan events.Event
	done chan struct{}
	once sync.Once
}

func (s *subscription) loop() {
	defer close(s.ch)
	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			e, err := events.Decode([]byte(m.Payload))
			if err != nil {
				zap.L().Warn("redisbus.decode", zap.String("channel", m.Channel), zap.Error(err))
				continue
			}
			select {
			case s.ch <- e:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) Events() <-chan events.Event { return s.ch }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
