// Package availability broadcasts requests to candidate providers and
// aggregates their asynchronous replies inside a bounded time window.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrNoReceivers indicates that a published message reached no subscriber.
var ErrNoReceivers = errors.New("no subscribers received the message")

// Message is one inbound pub/sub message.
type Message struct {
	Topic   string
	Payload []byte
}

// EventChannel is the pub/sub transport used to reach providers. Delivery is
// at-least-once; consumers must deduplicate.
type EventChannel interface {
	// Publish sends a payload to the given topic.
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe opens a long-lived subscription on the given topic.
	Subscribe(ctx context.Context, topic string) (<-chan Message, error)
	// Ping verifies that the transport is reachable.
	Ping(ctx context.Context) error
	// Close releases all subscriptions.
	Close() error
}

// RedisChannel implements EventChannel over Redis pub/sub.
type RedisChannel struct {
	client redis.UniversalClient
	qos    int
	log    *slog.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedisChannel creates a Redis-backed event channel. With qos > 0 a
// publish that reached zero subscribers counts as a failure, so the caller's
// retry policy kicks in instead of the message vanishing silently.
func NewRedisChannel(client redis.UniversalClient, qos int, log *slog.Logger) *RedisChannel {
	if log == nil {
		log = slog.Default()
	}

	return &RedisChannel{
		client: client,
		qos:    qos,
		log:    log,
	}
}

// Publish sends the payload and, depending on QoS, verifies reception.
func (c *RedisChannel) Publish(ctx context.Context, topic string, payload []byte) error {
	receivers, err := c.client.Publish(ctx, topic, payload).Result()
	if err != nil {
		return err
	}

	if c.qos > 0 && receivers == 0 {
		return ErrNoReceivers
	}

	return nil
}

// Subscribe opens a subscription and forwards messages until ctx is canceled
// or the channel is closed.
func (c *RedisChannel) Subscribe(ctx context.Context, topic string) (<-chan Message, error) {
	sub := c.client.Subscribe(ctx, topic)

	// Force the SUBSCRIBE round-trip so transport failures surface here.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	out := make(chan Message)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			select {
			case out <- Message{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Ping verifies connectivity to Redis.
func (c *RedisChannel) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close terminates every open subscription.
func (c *RedisChannel) Close() error {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
