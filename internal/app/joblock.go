/**
 * @description
 * Redis-backed best-effort job lock. A SET NX with TTL keeps overlapping
 * invocations of the same batch job from piling up; losing the lock only
 * skips a run, never breaks correctness.
 */

package app

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisJobLock implements JobLock on top of Redis.
type RedisJobLock struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisJobLock creates a job lock with the given key prefix. A nil client
// yields a lock that always grants acquisition.
func NewRedisJobLock(client redis.UniversalClient, prefix string) *RedisJobLock {
	trimmed := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmed == "" {
		trimmed = "codesalvage:escrow:jobs"
	}
	return &RedisJobLock{client: client, prefix: trimmed}
}

// Acquire attempts to take the lock for the named job. When Redis is not
// configured the lock always grants, leaving the per-record conditional
// updates as the only (and sufficient) overlap protection.
func (l *RedisJobLock) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return l.client.SetNX(ctx, l.key(job), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// Release drops the lock for the named job. Errors are ignored; the TTL
// bounds how long a leaked lock can linger.
func (l *RedisJobLock) Release(ctx context.Context, job string) {
	if l == nil || l.client == nil {
		return
	}
	l.client.Del(ctx, l.key(job))
}

func (l *RedisJobLock) key(job string) string {
	return l.prefix + ":" + job
}
