package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/logging"
)

// Envelope is one broadcast as carried between processes.
type Envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Bus relays broadcasts between processes.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe calls fn for every envelope until ctx is done.
	Subscribe(ctx context.Context, fn func(Envelope)) error
	Close() error
}

// RedisBus is a Bus over Redis Pub/Sub.
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *logging.Logger
}

// NewRedisBus connects to Redis and verifies the connection.
func NewRedisBus(cfg config.RedisConfig, log *logging.Logger) (*RedisBus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = config.DefaultRedisChannel
	}
	return &RedisBus{client: client, channel: channel, log: log.Sub("redis-bus")}, nil
}

// Publish sends env to every subscribed process.
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Subscribe listens on the channel until ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Envelope)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", b.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("discarding malformed envelope")
				continue
			}
			fn(env)
		}
	}
}

// Close releases the Redis connection pool.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
