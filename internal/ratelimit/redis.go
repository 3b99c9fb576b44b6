package ratelimit

import (
	"context"
	"fmt"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// allower はGCRAによるポイント消費を行う。*redis_rate.Limiterが満たす。
type allower interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// RedisLimiter はRedisを使用したLimiter実装。
// 複数インスタンス間でカウンタを共有する。
type RedisLimiter struct {
	client  redis.UniversalClient
	allower allower
}

// NewRedisLimiter はRedisLimiterを生成する。
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		allower: redis_rate.NewLimiter(client),
	}
}

// Consume はポイントを1消費する。ブロック中は常に拒否する。
func (l *RedisLimiter) Consume(ctx context.Context, policy Policy, key string) (Result, error) {
	bk := blockKey(policy, key)

	if policy.BlockDuration > 0 {
		ttl, err := l.client.PTTL(ctx, bk).Result()
		if err != nil {
			return Result{}, fmt.Errorf("failed to read block state: %w", err)
		}
		if ttl > 0 {
			return Result{
				Allowed:    false,
				Limit:      policy.Points,
				Remaining:  0,
				RetryAfter: ttl,
				ResetAfter: ttl,
			}, nil
		}
	}

	res, err := l.allower.Allow(ctx, storageKey(policy, key), redis_rate.Limit{
		Rate:   policy.Points,
		Burst:  policy.Points,
		Period: policy.Duration,
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to consume rate limit: %w", err)
	}

	if res.Allowed > 0 {
		return Result{
			Allowed:    true,
			Limit:      policy.Points,
			Remaining:  res.Remaining,
			ResetAfter: res.ResetAfter,
		}, nil
	}

	result := Result{
		Allowed:    false,
		Limit:      policy.Points,
		Remaining:  0,
		RetryAfter: res.RetryAfter,
		ResetAfter: res.ResetAfter,
	}

	if policy.BlockDuration > 0 {
		if err := l.client.Set(ctx, bk, "1", policy.BlockDuration).Err(); err != nil {
			return result, fmt.Errorf("failed to set block state: %w", err)
		}
		result.RetryAfter = policy.BlockDuration
		result.ResetAfter = policy.BlockDuration
	}

	return result, nil
}

var _ allower = (*redis_rate.Limiter)(nil)
