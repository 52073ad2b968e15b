// internal/tenant/redis_store.go
//
// Shared Store backed by Redis.
//
// Context
// -------
// MemoryStore gives every instance its own view, so two instances may
// serve different snapshots of one site inside a TTL window.  RedisStore
// swaps the map for one shared keyspace, which removes that skew at the
// cost of a network hop on every Get.
//
// Key layout (prefix defaults to "hostgate:")
//
//	<prefix>d:<domain>     JSON redisEntry, PX = ttl
//	<prefix>t:<tenant_id>  SET of domain keys cached for that tenant
//
// Failure policy
// --------------
//   - A Redis error on Get is logged and reads as a miss.
//   - A payload that does not decode, or decodes to something without a
//     tenant id, is cache corruption: logged, deleted, and read as a miss.
//   - Put, Invalidate, and friends log failures and return; the resolver
//     never sees them.
//
// Notes
// -----
//   - Capacity is bounded by the Redis maxmemory policy rather than an
//     entry count; run Redis with allkeys-lru.
//   - Oxford commas, two spaces after periods.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yanizio/hostgate/internal/tenant/meta"
)

const (
	defaultRedisPrefix = "hostgate:"
	redisEntryVersion  = 1
	scanBatch          = 500
)

// ErrCacheCorrupt marks a cached payload that could not be decoded.
var ErrCacheCorrupt = errors.New("tenant cache entry corrupt")

type redisEntry struct {
	V          int         `json:"v"`
	Record     meta.Record `json:"record"`
	InsertedAt time.Time   `json:"inserted_at"`
}

// RedisStore implements Store on a redis.UniversalClient.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time
}

// NewRedisStore returns a store writing under prefix with the given TTL.
func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration, log *zap.Logger) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.L()
	}
	return &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		log:    log.Named("tenant.redis"),
		now:    time.Now,
	}
}

func (s *RedisStore) domainKey(key string) string     { return s.prefix + "d:" + key }
func (s *RedisStore) tenantKey(tenantID string) string { return s.prefix + "t:" + tenantID }

func (s *RedisStore) Get(ctx context.Context, key string) (meta.Record, bool) {
	raw, err := s.rdb.Get(ctx, s.domainKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return meta.Record{}, false
	}
	if err != nil {
		s.log.Warn("redis get failed; treating as miss", zap.String("key", key), zap.Error(err))
		return meta.Record{}, false
	}

	rec, err := decodeEntry(raw)
	if err != nil {
		s.log.Warn("corrupt cache entry dropped", zap.String("key", key), zap.Error(err))
		if err := s.rdb.Del(ctx, s.domainKey(key)).Err(); err != nil {
			s.log.Warn("redis del failed", zap.String("key", key), zap.Error(err))
		}
		return meta.Record{}, false
	}
	return rec, true
}

func (s *RedisStore) Put(ctx context.Context, key string, rec meta.Record) {
	raw, err := encodeEntry(rec, s.now())
	if err != nil {
		s.log.Error("encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	dk, tk := s.domainKey(key), s.tenantKey(rec.TenantID)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, dk, raw, s.ttl)
		p.SAdd(ctx, tk, dk)
		p.PExpire(ctx, tk, 2*s.ttl)
		return nil
	})
	if err != nil {
		s.log.Warn("redis put failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore) Invalidate(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, s.domainKey(key)).Err(); err != nil {
		s.log.Warn("redis invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *RedisStore) InvalidateTenant(ctx context.Context, tenantID string) int {
	tk := s.tenantKey(tenantID)
	keys, err := s.rdb.SMembers(ctx, tk).Result()
	if err != nil {
		s.log.Warn("redis smembers failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return 0
	}
	n, err := s.rdb.Del(ctx, append(keys, tk)...).Result()
	if err != nil {
		s.log.Warn("redis tenant invalidate failed", zap.String("tenant_id", tenantID), zap.Error(err))
		return 0
	}
	// The index key itself is counted by DEL when it existed.
	if n > 0 && len(keys) > 0 {
		n--
	}
	return int(n)
}

func (s *RedisStore) InvalidateAll(ctx context.Context) {
	err := s.scan(ctx, s.prefix+"*", func(batch []string) error {
		return s.rdb.Del(ctx, batch...).Err()
	})
	if err != nil {
		s.log.Warn("redis flush failed", zap.Error(err))
	}
}

func (s *RedisStore) Len(ctx context.Context) int {
	n := 0
	err := s.scan(ctx, s.prefix+"d:*", func(batch []string) error {
		n += len(batch)
		return nil
	})
	if err != nil {
		s.log.Warn("redis scan failed", zap.Error(err))
	}
	return n
}

func (s *RedisStore) scan(ctx context.Context, match string, fn func([]string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func encodeEntry(rec meta.Record, at time.Time) ([]byte, error) {
	return json.Marshal(redisEntry{V: redisEntryVersion, Record: rec, InsertedAt: at})
}

func decodeEntry(raw []byte) (meta.Record, error) {
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return meta.Record{}, fmt.Errorf("%w: %w", ErrCacheCorrupt, err)
	}
	if e.V != redisEntryVersion || e.Record.TenantID == "" {
		return meta.Record{}, fmt.Errorf("%w: version %d, tenant %q", ErrCacheCorrupt, e.V, e.Record.TenantID)
	}
	return e.Record, nil
}
