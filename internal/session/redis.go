package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each draft as a JSON string under "<prefix>:draft:<id>".
// Every save refreshes the TTL.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

func NewRedisStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(id string) string { return s.prefix + ":draft:" + id }

func (s *RedisStore) Load(ctx context.Context, id string) (Record, error) {
	bs, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load draft %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(bs, &rec); err != nil {
		return Record{}, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	bs, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key(rec.ID), bs, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft %s: %w", rec.ID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, s.key(id)).Err()
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisLocker is a SET NX PX lock so that several server instances
// serialize on the same draft. Waiters poll until ctx is done.
type RedisLocker struct {
	rdb    redisLockClient
	prefix string
	lease  time.Duration
	poll   time.Duration
}

// redisLockClient is the subset of go-redis the locker needs.
type redisLockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NewRedisLocker returns a locker whose leases expire after lease, which
// must exceed the longest operation run under the lock.
func NewRedisLocker(rdb redisLockClient, prefix string, lease time.Duration) *RedisLocker {
	return &RedisLocker{rdb: rdb, prefix: prefix, lease: lease, poll: 25 * time.Millisecond}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + ":lock:" + key
	token := uuid.NewString()
	for {
		ok, err := l.rdb.SetNX(ctx, k, token, l.lease).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// the request context may already be gone
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, l.rdb, []string{k}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}
