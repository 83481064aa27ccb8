package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/careloop/patientsync/pkg/common/logger"
	"github.com/careloop/patientsync/pkg/common/models"
	"github.com/careloop/patientsync/pkg/observability/metrics"
	"github.com/redis/go-redis/v9"
)

// Backend is the minimal key-value surface the store needs. The redis client
// satisfies it in production; tests swap in an in-memory or failing fake.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type redisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) Backend {
	return &redisBackend{client: client}
}

func (b *redisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (b *redisBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *redisBackend) Del(ctx context.Context, keys ...string) error {
	return b.client.Del(ctx, keys...).Err()
}

func (b *redisBackend) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl > 0 && count == 1 {
		if err := b.client.Expire(ctx, key, ttl).Err(); err != nil {
			logger.Log.WithError(err).WithField("key", key).Warn("cache: expire failed")
		}
	}
	return count, nil
}

// Store keeps list, detail and process-result views warm between fetches.
// Every failure here is logged and swallowed: a broken cache degrades to a
// miss, never to a failed request.
type Store struct {
	backend    Backend
	listTTL    time.Duration
	detailTTL  time.Duration
	processTTL time.Duration
}

func NewStore(backend Backend, listTTL, detailTTL, processTTL time.Duration) *Store {
	return &Store{
		backend:    backend,
		listTTL:    listTTL,
		detailTTL:  detailTTL,
		processTTL: processTTL,
	}
}

func (s *Store) GetList(ctx context.Context, page int, out *models.PatientListResponse) bool {
	epoch, ok := s.currentEpoch(ctx)
	if !ok {
		return false
	}
	return s.get(ctx, listKey(epoch, page), out)
}

func (s *Store) SetList(ctx context.Context, page int, value *models.PatientListResponse) {
	epoch, ok := s.currentEpoch(ctx)
	if !ok {
		return
	}
	s.set(ctx, listKey(epoch, page), value, s.listTTL)
}

// InvalidateLists bumps the list epoch, orphaning every cached page. The bump
// is a single atomic INCR, so a read issued after a mutation completes can
// never land on a pre-mutation page.
func (s *Store) InvalidateLists(ctx context.Context) {
	if _, err := s.backend.Incr(ctx, listEpochKey, 0); err != nil {
		logger.Log.WithError(err).Warn("cache: list invalidation failed")
	}
}

func (s *Store) GetDetail(ctx context.Context, id string, out *models.Patient) bool {
	return s.get(ctx, detailKey(id), out)
}

func (s *Store) SetDetail(ctx context.Context, id string, value *models.Patient) {
	s.set(ctx, detailKey(id), value, s.detailTTL)
}

func (s *Store) EvictDetail(ctx context.Context, id string) {
	if err := s.backend.Del(ctx, detailKey(id)); err != nil {
		logger.Log.WithError(err).WithField("id", id).Warn("cache: detail eviction failed")
	}
}

func (s *Store) GetProcess(ctx context.Context, id string, payload models.ProcessRequest, out *models.ProcessResult) bool {
	return s.get(ctx, processKey(id, payload), out)
}

func (s *Store) SetProcess(ctx context.Context, id string, payload models.ProcessRequest, value *models.ProcessResult) {
	s.set(ctx, processKey(id, payload), value, s.processTTL)
}

// ProcessKey exposes the content address of a process payload so other layers
// (the durable cache) can key by the same identity.
func (s *Store) ProcessKey(id string, payload models.ProcessRequest) string {
	return processKey(id, payload)
}

func (s *Store) currentEpoch(ctx context.Context) (int64, bool) {
	raw, found, err := s.backend.Get(ctx, listEpochKey)
	if err != nil {
		logger.Log.WithError(err).Warn("cache: epoch read failed")
		return 0, false
	}
	if !found {
		return 0, true
	}
	var epoch int64
	if err := json.Unmarshal([]byte(raw), &epoch); err != nil {
		return 0, false
	}
	return epoch, true
}

func (s *Store) get(ctx context.Context, key string, out interface{}) bool {
	raw, found, err := s.backend.Get(ctx, key)
	if err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("cache: read failed")
		metrics.CacheMiss()
		return false
	}
	if !found {
		metrics.CacheMiss()
		return false
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("cache: corrupt entry")
		metrics.CacheMiss()
		return false
	}
	metrics.CacheHit()
	return true
}

func (s *Store) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("cache: marshal failed")
		return
	}
	if err := s.backend.Set(ctx, key, string(raw), ttl); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("cache: write failed")
	}
}
