package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clan-tracker/internal/config"

	"github.com/rs/zerolog"
	"github.com/valkey-io/valkey-go"
)

// ErrEmpty is returned by Get when no item became available within the
// blocking timeout.
var ErrEmpty = errors.New("queue is empty")

// Queue is a durable FIFO backed by a Redis list. Delivery is at-least-once:
// a consumer crash after pop loses nothing upstream but may leave an item
// unprocessed or processed twice, so consumers must be idempotent.
type Queue struct {
	client valkey.Client
	key    string
	logger zerolog.Logger
}

func New(client valkey.Client, name string, logger zerolog.Logger) *Queue {
	return &Queue{
		client: client,
		key:    "queue:" + name,
		logger: logger.With().Str("queue", name).Logger(),
	}
}

// NewClient connects to the Redis server from config.
func NewClient(cfg *config.Config) (valkey.Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{cfg.RedisAddr},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return client, nil
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Do(ctx, q.client.B().Ping().Build()).Error()
}

// Put appends one item to the tail of the queue.
func (q *Queue) Put(ctx context.Context, item []byte) error {
	cmd := q.client.B().Rpush().Key(q.key).Element(string(item)).Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", q.key, err)
	}
	return nil
}

// Get pops one item from the head of the queue. When block is true it waits
// up to timeout for an item, returning ErrEmpty if none arrived.
func (q *Queue) Get(ctx context.Context, block bool, timeout time.Duration) ([]byte, error) {
	if block {
		cmd := q.client.B().Blpop().Key(q.key).Timeout(timeout.Seconds()).Build()
		res, err := q.client.Do(ctx, cmd).AsStrSlice()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				return nil, ErrEmpty
			}
			return nil, fmt.Errorf("failed to pop from %s: %w", q.key, err)
		}
		// BLPOP replies [key, value].
		if len(res) < 2 {
			return nil, ErrEmpty
		}
		return []byte(res[1]), nil
	}

	cmd := q.client.B().Lpop().Key(q.key).Build()
	item, err := q.client.Do(ctx, cmd).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", q.key, err)
	}
	return []byte(item), nil
}

// Size returns the approximate number of items in the queue.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	cmd := q.client.B().Llen().Key(q.key).Build()
	size, err := q.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("failed to get size of %s: %w", q.key, err)
	}
	return size, nil
}

func (q *Queue) Empty(ctx context.Context) (bool, error) {
	size, err := q.Size(ctx)
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

func (q *Queue) Close() {
	q.client.Close()
}
