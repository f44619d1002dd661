package amqpbus

import (
	"context"
	"fmt"
	"sync"

	"livebid/internal/events"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const DefaultExchange = "auction.events"

// RoutingKey returns the topic routing key of an auction: "auction.<id>".
func RoutingKey(auctionID string) string {
	return "auction." + auctionID
}

// Bus publishes to a durable topic exchange; each subscription is an
// exclusive auto-delete queue bound to one auction's routing key.
type Bus struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex // guards pub
	pub *amqp.Channel
}

var _ events.Bus = (*Bus)(nil)

func Dial(url, exchange string) (*Bus, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqpbus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpbus: open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqpbus: declare exchange %s: %w", exchange, err)
	}
	return &Bus{conn: conn, exchange: exchange, pub: ch}, nil
}

func (b *Bus) Publish(ctx context.Context, e events.Event) error {
	body, err := events.Encode(e)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.pub.PublishWithContext(ctx,
		b.exchange,
		RoutingKey(e.AuctionID),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Type:        e.Type,
			Timestamp:   e.At,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("amqpbus: publish %s: %w", e.AuctionID, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, auctionID string) (events.Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("amqpbus: open channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqpbus: declare queue: %w", err)
	}
	if err = ch.QueueBind(q.Name, RoutingKey(auctionID), b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqpbus: bind %s: %w", auctionID, err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx,
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("amqpbus: consume %s: %w", auctionID, err)
	}

	s := &subscription{ch: ch, out: make(chan events.Event, 32), done: make(chan struct{})}
	go s.loop(deliveries)
	return s, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	_ = b.pub.Close()
	b.mu.Unlock()
	return b.conn.Close()
}

type subscription struct {
	ch   *amqp.Channel
	out  chan events.Event
	done chan struct{}
	once sync.Once
}

func (s *subscription) loop(deliveries <-chan amqp.Delivery) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			e, err := events.Decode(d.Body)
			if err != nil {
				zap.L().Warn("amqpbus.decode", zap.String("routing_key", d.RoutingKey), zap.Error(err))
				continue
			}
			select {
			case s.out <- e:
			case <-s.done:
				return
			}
		}
	}
}

func (s *subscription) Events() <-chan events.Event { return s.out }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ch.Close()
	})
	return err
}
