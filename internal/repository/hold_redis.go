package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisHoldStore keeps each session's hold keys in a Redis hash named
// "<prefix>:<sessionID>".  Every write refreshes the hash TTL so abandoned
// sessions disappear on their own.  A sorted set "<prefix>:expiry" indexes
// sessions by hold expiry for the abandoned-hold sweeper.
type RedisHoldStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHoldStore returns a store bound to rdb.  An empty prefix falls
// back to "hold"; a non-positive ttl to 24 hours.
func NewRedisHoldStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisHoldStore {
	if prefix == "" {
		prefix = "hold"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisHoldStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// ForSession returns the HoldRepository view of one session.
func (s *RedisHoldStore) ForSession(sessionID string) HoldRepository {
	return &redisSession{store: s, key: s.sessionKey(sessionID)}
}

func (s *RedisHoldStore) sessionKey(sessionID string) string { return s.prefix + ":" + sessionID }
func (s *RedisHoldStore) indexKey() string                   { return s.prefix + ":expiry" }

// IndexExpiry records that sessionID holds seats until expiresAt.
func (s *RedisHoldStore) IndexExpiry(ctx context.Context, sessionID string, expiresAt time.Time) error {
	return s.rdb.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(expiresAt.Unix()),
		Member: sessionID,
	}).Err()
}

// Unindex drops sessionID from the expiry index.  Removing a session that
// is not indexed is not an error.
func (s *RedisHoldStore) Unindex(ctx context.Context, sessionID string) error {
	return s.rdb.ZRem(ctx, s.indexKey(), sessionID).Err()
}

// ClaimExpired returns up to limit sessions whose holds expired at or
// before now.  Each session is removed from the index as it is claimed;
// a session another instance removed first is skipped, so every expired
// hold is handed out once.
func (s *RedisHoldStore) ClaimExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	claimed := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.rdb.ZRem(ctx, s.indexKey(), id).Result()
		if err != nil {
			return claimed, err
		}
		if n == 1 {
			claimed = append(claimed, id)
		}
	}
	return claimed, nil
}

type redisSession struct {
	store *RedisHoldStore
	key   string
}

func (s *redisSession) Get(ctx context.Context, key HoldKey) (string, bool, error) {
	v, err := s.store.rdb.HGet(ctx, s.key, string(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *redisSession) Set(ctx context.Context, key HoldKey, value string) error {
	if err := s.store.rdb.HSet(ctx, s.key, string(key), value).Err(); err != nil {
		return err
	}
	return s.store.rdb.Expire(ctx, s.key, s.store.ttl).Err()
}

func (s *redisSession) SetIfAbsent(ctx context.Context, key HoldKey, value string) (bool, error) {
	ok, err := s.store.rdb.HSetNX(ctx, s.key, string(key), value).Result()
	if err != nil {
		return false, err
	}
	if ok {
		err = s.store.rdb.Expire(ctx, s.key, s.store.ttl).Err()
	}
	return ok, err
}

func (s *redisSession) Clear(ctx context.Context, keys ...HoldKey) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = string(k)
	}
	return s.store.rdb.HDel(ctx, s.key, fields...).Err()
}
