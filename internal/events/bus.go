package events

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/memophor/scedge/internal/apperr"
)

// Message is one raw payload delivered on the bus channel.
type Message struct {
	Payload []byte
}

// Subscription is a live feed of messages from one channel. Messages closes
// when the subscription ends.
type Subscription interface {
	Messages() <-chan Message
	Close() error
}

// Bus abstracts the message broker so the listener can be driven by Redis
// Pub/Sub in production and an in-process bus in tests.
type Bus interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisBus implements Bus on Redis Pub/Sub. The listener owns its
// connection; it is never shared with the request pipeline.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus connects using a redis:// URL.
func NewRedisBus(url string) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, apperr.Internalf("parse event bus url: %w", err)
	}
	return &RedisBus{client: redis.NewClient(opts)}, nil
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	// Force the SUBSCRIBE round-trip so connection failures surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, apperr.Internalf("subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{pubsub: pubsub, msgs: make(chan Message)}
	go sub.pump()
	return sub, nil
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return apperr.Internalf("publish to %s: %w", channel, err)
	}
	return nil
}

// Close releases the connection pool.
func (b *RedisBus) Close() error { return b.client.Close() }

type redisSubscription struct {
	pubsub *redis.PubSub
	msgs   chan Message
}

func (s *redisSubscription) pump() {
	defer close(s.msgs)
	for msg := range s.pubsub.Channel() {
		s.msgs <- Message{Payload: []byte(msg.Payload)}
	}
}

func (s *redisSubscription) Messages() <-chan Message { return s.msgs }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }
