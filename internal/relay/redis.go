package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// RedisBroker fans messages out through Redis pub/sub so that several server
// processes share user channels. Channel names are prefix + user id.
type RedisBroker struct {
	client  *redis.Client
	prefix  string
	buffer  int
	logger  *slog.Logger
	dropped atomic.Uint64
}

func NewRedisBroker(client *redis.Client, prefix string, buffer int, logger *slog.Logger) *RedisBroker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{client: client, prefix: prefix, buffer: buffer, logger: logger}
}

// DialRedis connects and pings the server at addr.
func DialRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (b *RedisBroker) channel(userID string) string { return b.prefix + userID }

func (b *RedisBroker) Publish(ctx context.Context, userID string, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(userID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel(userID))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}
	sub := &redisSub{ps: ps, ch: make(chan Message, b.buffer)}
	go b.pump(sub)
	return sub, nil
}

func (b *RedisBroker) pump(sub *redisSub) {
	defer close(sub.ch)
	for m := range sub.ps.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
			b.logger.Warn("relay: bad redis payload", "channel", m.Channel, "err", err)
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped counts messages discarded because a subscriber queue was full.
func (b *RedisBroker) Dropped() uint64 { return b.dropped.Load() }

func (b *RedisBroker) Close() error { return b.client.Close() }

type redisSub struct {
	ps *redis.PubSub
	ch chan Message
}

func (s *redisSub) C() <-chan Message { return s.ch }

func (s *redisSub) Close() error { return s.ps.Close() }
