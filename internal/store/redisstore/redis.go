package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// Allow counts one hit against key in a fixed window. It returns whether the
// hit is within limit, the hits left, and the time until the window resets.
func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Duration, error) {
	k := "rl:" + key
	count, err := s.rdb.Incr(ctx, k).Result()
	if err != nil {
		return false, 0, 0, err
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, k, window).Err(); err != nil {
			return false, 0, 0, err
		}
	}

	ttl, err := s.rdb.TTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		// key survived without an expiry
		_ = s.rdb.Expire(ctx, k, window).Err()
		ttl = window
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return count <= int64(limit), remaining, ttl, nil
}
