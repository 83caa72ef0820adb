package cache

import (
	"context"
	"fmt"

	"bookkeeper_bot/internal/domain/kv"

	"github.com/dgraph-io/ristretto"
	"github.com/sirupsen/logrus"
)

const defaultMaxCostBytes = 64 << 20

// CachedStore is a read-through cache in front of a kv.Store. Writes go to the
// backing store first and the cached copy is replaced only after they succeed.
type CachedStore struct {
	next   kv.Store
	cache  *ristretto.Cache
	logger *logrus.Entry
}

func NewCachedStore(next kv.Store, logger *logrus.Entry) (*CachedStore, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        1000, // number of keys to track frequency of
		MaxCost:            defaultMaxCostBytes,
		BufferItems:        64, // number of keys per Get buffer
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	return &CachedStore{next: next, cache: c, logger: logger}, nil
}

func (s *CachedStore) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		if data, ok := v.([]byte); ok {
			return clone(data), nil
		}
	}
	data, err := s.next.Get(ctx, key)
	if err != nil || data == nil {
		return data, err
	}
	s.set(key, data)
	return data, nil
}

func (s *CachedStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.next.Put(ctx, key, value); err != nil {
		s.cache.Del(key)
		return err
	}
	s.set(key, value)
	return nil
}

// set drops the old entry before admitting the new one: ristretto may reject
// the new entry, and a miss is always safe where a stale hit is not.
func (s *CachedStore) set(key string, value []byte) {
	s.cache.Del(key)
	if !s.cache.Set(key, clone(value), int64(len(value))+1) {
		s.logger.WithField("key", key).Debug("Cache rejected value")
	}
	s.cache.Wait()
}

func (s *CachedStore) Close() {
	s.cache.Close()
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
