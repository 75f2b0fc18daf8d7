package redisad

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const storePrefix = "spotcheck:"

// Store is a domain.KVStore on redis. Keys never expire; the session record
// lives until logout.
type Store struct{ c *redis.Client }

func NewStore(addr, pass string, db int) *Store {
	return &Store{c: redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.c.Get(ctx, storePrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Store) Put(ctx context.Context, key string, val []byte) error {
	return s.c.Set(ctx, storePrefix+key, val, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.c.Del(ctx, storePrefix+key).Err()
}

func (s *Store) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }

func (s *Store) Close() error { return s.c.Close() }
