package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "cart-events"

// Backplane carries encoded envelopes between service instances.
type Backplane interface {
	Publish(ctx context.Context, data []byte) error
	// Subscribe calls handler for every message until ctx is done.
	Subscribe(ctx context.Context, handler func([]byte)) error
	Close() error
}

type RedisBackplane struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisBackplane checks the connection before returning so callers can
// fall back to local-only delivery.
func NewRedisBackplane(ctx context.Context, client redis.UniversalClient, channel string) (*RedisBackplane, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis backplane: %w", err)
	}
	return &RedisBackplane{client: client, channel: channel}, nil
}

func (b *RedisBackplane) Publish(ctx context.Context, data []byte) error {
	return b.client.Publish(ctx, b.channel, data).Err()
}

func (b *RedisBackplane) Subscribe(ctx context.Context, handler func([]byte)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis backplane subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis backplane: subscription closed")
			}
			handler([]byte(msg.Payload))
		}
	}
}

// Close is a no-op; the client is shared with the cache and closed by its owner.
func (b *RedisBackplane) Close() error {
	return nil
}

type NatsBackplane struct {
	conn    *nats.Conn
	subject string
}

func NewNatsBackplane(url, subject string) (*NatsBackplane, error) {
	if subject == "" {
		subject = DefaultChannel
	}
	nc, err := nats.Connect(url,
		nats.Name("cart-service"),
		nats.Timeout(2*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats backplane: %w", err)
	}
	return &NatsBackplane{conn: nc, subject: subject}, nil
}

func (b *NatsBackplane) Publish(_ context.Context, data []byte) error {
	return b.conn.Publish(b.subject, data)
}

func (b *NatsBackplane) Subscribe(ctx context.Context, handler func([]byte)) error {
	sub, err := b.conn.Subscribe(b.subject, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return fmt.Errorf("nats backplane subscribe: %w", err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	return ctx.Err()
}

func (b *NatsBackplane) Close() error {
	return b.conn.Drain()
}
