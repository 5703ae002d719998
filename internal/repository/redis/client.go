package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client holds live room state: snapshots, action windows, intent hashes,
// ready sets and turn timers.
type Client struct {
	rdb *redis.Client
	db  int
}

// NewClient connects to Redis from a connection URL.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb, db: opts.DB}, nil
}

// NewClientFromPool wraps an existing redis.Client for use in tests.
func NewClientFromPool(rdb *redis.Client) *Client {
	return &Client{rdb: rdb, db: rdb.Options().DB}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// EnableExpiryEvents turns on keyspace notifications for expired keys.
// Managed Redis often forbids CONFIG SET, in which case turn deadlines are
// only caught by polling.
func (c *Client) EnableExpiryEvents(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}

// ExpiredRooms yields the room id of every turn timer that expires until ctx
// is cancelled. The channel is closed when the subscription ends.
func (c *Client) ExpiredRooms(ctx context.Context) <-chan string {
	out := make(chan string)
	pubsub := c.rdb.PSubscribe(ctx, fmt.Sprintf("__keyevent@%d__:expired", c.db))
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				roomID, ok := RoomIDFromTimerKey(msg.Payload)
				if !ok {
					continue
				}
				select {
				case out <- roomID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
