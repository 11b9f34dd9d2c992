package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"safeflag/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	cacheGroupAnalytics = "analytics"
	cacheGroupAudit     = "audit"
)

// ReadCacheStore holds read-model snapshots. Keys look like "group|suffix" so a
// whole group can be dropped after a write. Every InvalidateGroup bumps the
// group's generation.
type ReadCacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidateGroup(ctx context.Context, group string) error
	Generation(ctx context.Context, group string) (int64, error)
}

func cacheKey(group, suffix string) string {
	return group + "|" + suffix
}

func cacheGroup(key string) string {
	group, _, _ := strings.Cut(key, "|")
	return group
}

type NoopReadCacheStore struct{}

func NewNoopReadCacheStore() *NoopReadCacheStore {
	return &NoopReadCacheStore{}
}

func (s *NoopReadCacheStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *NoopReadCacheStore) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (s *NoopReadCacheStore) InvalidateGroup(context.Context, string) error {
	return nil
}

func (s *NoopReadCacheStore) Generation(context.Context, string) (int64, error) {
	return 0, nil
}

type readCacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

type InMemoryReadCacheStore struct {
	mu      sync.RWMutex
	entries map[string]readCacheEntry
	gens    map[string]int64
	now     func() time.Time
}

func NewInMemoryReadCacheStore() *InMemoryReadCacheStore {
	return &InMemoryReadCacheStore{entries: map[string]readCacheEntry{}, gens: map[string]int64{}, now: time.Now}
}

func (s *InMemoryReadCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	now := s.now()
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return append([]byte(nil), entry.payload...), true, nil
}

func (s *InMemoryReadCacheStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	s.entries[key] = readCacheEntry{payload: append([]byte(nil), value...), expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *InMemoryReadCacheStore) InvalidateGroup(_ context.Context, group string) error {
	s.mu.Lock()
	for key := range s.entries {
		if cacheGroup(key) == group {
			delete(s.entries, key)
		}
	}
	s.gens[group]++
	s.mu.Unlock()
	return nil
}

func (s *InMemoryReadCacheStore) Generation(_ context.Context, group string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[group], nil
}

type RedisReadCacheStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisReadCacheStore(client redis.UniversalClient, prefix string) *RedisReadCacheStore {
	if prefix == "" {
		prefix = "safeflag:cache:"
	}
	return &RedisReadCacheStore{client: client, prefix: prefix}
}

func (s *RedisReadCacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.dataKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *RedisReadCacheStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	dataKey := s.dataKey(key)
	indexKey := s.indexKey(cacheGroup(key))
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, dataKey, value, ttl)
	pipe.SAdd(ctx, indexKey, dataKey)
	pipe.Expire(ctx, indexKey, ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisReadCacheStore) InvalidateGroup(ctx context.Context, group string) error {
	indexKey := s.indexKey(group)
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, indexKey)
	pipe.Incr(ctx, s.genKey(group))
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisReadCacheStore) Generation(ctx context.Context, group string) (int64, error) {
	raw, err := s.client.Get(ctx, s.genKey(group)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

func (s *RedisReadCacheStore) dataKey(key string) string {
	return s.prefix + "data:" + key
}

func (s *RedisReadCacheStore) indexKey(group string) string {
	return s.prefix + "index:" + group
}

func (s *RedisReadCacheStore) genKey(group string) string {
	return s.prefix + "gen:" + group
}

// NewReadCacheStore picks the store for driver: none, memory or redis.
func NewReadCacheStore(driver string, rdb redis.UniversalClient, prefix string) ReadCacheStore {
	switch strings.ToLower(driver) {
	case "redis":
		if rdb != nil {
			return NewRedisReadCacheStore(rdb, prefix)
		}
		logger.Warn("redis read cache requested without a client, falling back to memory")
		return NewInMemoryReadCacheStore()
	case "memory":
		return NewInMemoryReadCacheStore()
	default:
		return NewNoopReadCacheStore()
	}
}

// cachedRead serves key from store, loading and storing it on a miss.
// Entries are stored under the group generation read before the load, so a
// load that races an invalidation lands under a retired key and is never
// served. Cache failures degrade to a direct load.
func cachedRead[T any](ctx context.Context, store ReadCacheStore, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	gen, err := store.Generation(ctx, cacheGroup(key))
	if err != nil {
		logger.Warn("read cache generation failed", zap.String("key", key), zap.Error(err))
		return load()
	}
	key = generationKey(key, gen)

	if raw, ok, err := store.Get(ctx, key); err != nil {
		logger.Warn("read cache get failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	val, err := load()
	if err != nil {
		return val, err
	}
	if raw, err := json.Marshal(val); err == nil {
		if err := store.Set(ctx, key, raw, ttl); err != nil {
			logger.Warn("read cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return val, nil
}

func generationKey(key string, gen int64) string {
	return key + "#" + strconv.FormatInt(gen, 10)
}

func invalidate(ctx context.Context, store ReadCacheStore, group string) {
	if err := store.InvalidateGroup(ctx, group); err != nil {
		logger.Warn("read cache invalidation failed", zap.String("group", group), zap.Error(err))
	}
}
