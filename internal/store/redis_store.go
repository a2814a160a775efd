package store

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"proxypool/internal/domain"
)

// decayScript rescales every indexed score in place so the pair of
// structures never drifts: details are untouched, only ranking changes.
var decayScript = redis.NewScript(`
local members = redis.call('ZRANGE', KEYS[1], 0, -1, 'WITHSCORES')
local factor = tonumber(ARGV[1])
local floor = tonumber(ARGV[2])
local updated = 0
for i = 1, #members, 2 do
  local score = tonumber(members[i + 1]) * factor
  if score < floor then score = floor end
  redis.call('ZADD', KEYS[1], score, members[i])
  updated = updated + 1
end
return updated
`)

// RedisStore backs the scored pool with a Redis sorted set and hash,
// written together through pipelines.
type RedisStore struct {
	client       *redis.Client
	poolKey      string
	initialScore float64
}

func NewRedisStore(redisURL, poolKey string, initialScore float64) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL %q: %w", redisURL, err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, poolKey: poolKey, initialScore: initialScore}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) detailsKey() string {
	return s.poolKey + ":details"
}

func (s *RedisStore) Add(ctx context.Context, record *domain.Record) bool {
	detail, err := record.Serialize()
	if err != nil {
		log.Error("failed to serialize record", "key", record.Key(), "error", err)
		return false
	}
	return s.addIfAbsent(ctx, record.Key(), defaultAddScore(record), detail)
}

func (s *RedisStore) AddIdentity(ctx context.Context, id domain.Identity) bool {
	return s.addIfAbsent(ctx, id.Key(), s.initialScore, "")
}

func (s *RedisStore) addIfAbsent(ctx context.Context, key string, score float64, detail string) bool {
	err := s.client.ZScore(ctx, s.poolKey, key).Err()
	if err == nil {
		return false // already pooled, no overwrite
	}
	if err != redis.Nil {
		log.Error("failed to check pool membership", "key", key, "error", err)
		return false
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.poolKey, redis.Z{Score: score, Member: key})
	if detail != "" {
		pipe.HSet(ctx, s.detailsKey(), key, detail)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("failed to add proxy to pool", "key", key, "error", err)
		return false
	}
	return true
}

func (s *RedisStore) UpdateScore(ctx context.Context, record *domain.Record, score float64) bool {
	detail, err := record.Serialize()
	if err != nil {
		log.Error("failed to serialize record", "key", record.Key(), "error", err)
		return false
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, s.poolKey, redis.Z{Score: score, Member: record.Key()})
	pipe.HSet(ctx, s.detailsKey(), record.Key(), detail)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("failed to update proxy score", "key", record.Key(), "error", err)
		return false
	}
	return true
}

func (s *RedisStore) UpdateIdentityScore(ctx context.Context, id domain.Identity, score float64) bool {
	err := s.client.ZAdd(ctx, s.poolKey, redis.Z{Score: score, Member: id.Key()}).Err()
	if err != nil {
		log.Error("failed to update identity score", "key", id.Key(), "error", err)
		return false
	}
	return true
}

func (s *RedisStore) Remove(ctx context.Context, key string) bool {
	pipe := s.client.Pipeline()
	removed := pipe.ZRem(ctx, s.poolKey, key)
	pipe.HDel(ctx, s.detailsKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("failed to remove proxy", "key", key, "error", err)
		return false
	}
	return removed.Val() > 0
}

func (s *RedisStore) RandomProxy(ctx context.Context, minScore float64) (*domain.Record, bool) {
	keys, err := s.client.ZRangeByScore(ctx, s.poolKey, &redis.ZRangeBy{
		Min: formatScore(minScore),
		Max: "+inf",
	}).Result()
	if err != nil {
		log.Error("failed to query pool by score", "error", err)
		return nil, false
	}
	if len(keys) == 0 {
		return nil, false // pool exhausted for this floor, expected
	}

	key := keys[rand.Intn(len(keys))]
	detail, err := s.client.HGet(ctx, s.detailsKey(), key).Result()
	if err != nil && err != redis.Nil {
		log.Error("failed to fetch proxy detail", "key", key, "error", err)
		detail = ""
	}
	return hydrate(key, detail)
}

func (s *RedisStore) GetAll(ctx context.Context) []*domain.Record {
	keys, err := s.client.ZRange(ctx, s.poolKey, 0, -1).Result()
	if err != nil {
		log.Error("failed to list pool", "error", err)
		return nil
	}
	return s.hydrateKeys(ctx, keys)
}

func (s *RedisStore) GetByScoreRange(ctx context.Context, min, max float64) []*domain.Record {
	keys, err := s.client.ZRangeByScore(ctx, s.poolKey, &redis.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
	if err != nil {
		log.Error("failed to query pool by score range", "error", err)
		return nil
	}
	return s.hydrateKeys(ctx, keys)
}

func (s *RedisStore) hydrateKeys(ctx context.Context, keys []string) []*domain.Record {
	if len(keys) == 0 {
		return nil
	}

	details, err := s.client.HMGet(ctx, s.detailsKey(), keys...).Result()
	if err != nil {
		log.Error("failed to fetch proxy details", "error", err)
		details = make([]interface{}, len(keys))
	}

	records := make([]*domain.Record, 0, len(keys))
	for i, key := range keys {
		detail := ""
		if i < len(details) {
			if s, ok := details[i].(string); ok {
				detail = s
			}
		}
		if record, ok := hydrate(key, detail); ok {
			records = append(records, record)
		}
	}
	return records
}

func (s *RedisStore) Count(ctx context.Context) int64 {
	count, err := s.client.ZCard(ctx, s.poolKey).Result()
	if err != nil {
		log.Error("failed to count pool", "error", err)
		return 0
	}
	return count
}

func (s *RedisStore) BatchAdd(ctx context.Context, records []*domain.Record) int {
	if len(records) == 0 {
		return 0
	}

	members, err := s.client.ZRange(ctx, s.poolKey, 0, -1).Result()
	if err != nil {
		log.Error("failed to read pool for batch add", "error", err)
		return 0
	}
	existing := make(map[string]struct{}, len(members))
	for _, member := range members {
		existing[member] = struct{}{}
	}

	pipe := s.client.Pipeline()
	added := 0
	for _, record := range records {
		key := record.Key()
		if _, ok := existing[key]; ok {
			continue
		}
		detail, err := record.Serialize()
		if err != nil {
			log.Error("failed to serialize record", "key", key, "error", err)
			continue
		}
		pipe.ZAdd(ctx, s.poolKey, redis.Z{Score: defaultAddScore(record), Member: key})
		pipe.HSet(ctx, s.detailsKey(), key, detail)
		existing[key] = struct{}{}
		added++
	}
	if added == 0 {
		return 0
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("batch add pipeline failed", "error", err)
		return 0
	}
	return added
}

func (s *RedisStore) DecayScores(ctx context.Context, factor float64) int64 {
	updated, err := decayScript.Run(ctx, s.client, []string{s.poolKey}, factor, 0).Int64()
	if err != nil {
		log.Error("failed to decay pool scores", "error", err)
		return 0
	}
	return updated
}

func (s *RedisStore) Clear(ctx context.Context) bool {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.poolKey)
	pipe.Del(ctx, s.detailsKey())
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error("failed to clear pool", "error", err)
		return false
	}
	return true
}

func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
