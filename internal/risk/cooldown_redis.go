package risk

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCooldownStore shares the cooldown ledger between engine
// processes through Redis. Keys carry a TTL of one day; a missing key
// means no recent trade.
type RedisCooldownStore struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisCooldownStore connects and pings the Redis instance.
func NewRedisCooldownStore(addr, password string, db int) (*RedisCooldownStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &RedisCooldownStore{client: client, prefix: "smc:cooldown:", timeout: 3 * time.Second}, nil
}

// LastTrade returns the recorded last order time for a symbol.
func (s *RedisCooldownStore) LastTrade(symbol string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	val, err := s.client.Get(ctx, s.prefix+symbol).Result()
	if err != nil {
		return time.Time{}, false
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// MarkTrade records an order time with a one-day TTL.
func (s *RedisCooldownStore) MarkTrade(symbol string, t time.Time) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	key := s.prefix + symbol
	if err := s.client.Set(ctx, key, strconv.FormatInt(t.Unix(), 10), 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("writing cooldown key %s: %w", key, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisCooldownStore) Close() error {
	return s.client.Close()
}
