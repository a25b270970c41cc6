package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// admitScript 在一次原子操作中完成清理、计数和记录。
// KEYS[1] 窗口键; ARGV: now(ms), window(ms), limit, member
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisLimiter 使用有序集合实现滑动窗口，可在多实例间共享限流状态。
// 键带有过期时间，不需要后台清理。
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter 创建基于 Redis 的限流器。
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, opts ...Option) *RedisLimiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	limit, window = normalize(limit, window)
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: o.keyPrefix,
		now:    o.now,
	}
}

// Limit 返回窗口内允许的最大请求数。
func (l *RedisLimiter) Limit() int {
	return l.limit
}

// Admit 执行原子脚本判断是否放行。
func (l *RedisLimiter) Admit(ctx context.Context, client, provider string) (bool, error) {
	now := l.now().UnixMilli()
	res, err := admitScript.Run(ctx, l.client, []string{l.key(client, provider)},
		now, l.window.Milliseconds(), l.limit, uuid.NewString()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	return res == 1, nil
}

// Remaining 返回当前窗口内剩余的请求数。
func (l *RedisLimiter) Remaining(ctx context.Context, client, provider string) (int, error) {
	count, err := l.client.ZCount(ctx, l.key(client, provider), l.windowStart(), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rate limit window: %w", err)
	}
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetAt 返回最早一条记录移出窗口的时间，窗口为空时返回当前时间。
func (l *RedisLimiter) ResetAt(ctx context.Context, client, provider string) (time.Time, error) {
	oldest, err := l.client.ZRangeByScoreWithScores(ctx, l.key(client, provider), &redis.ZRangeBy{
		Min:   l.windowStart(),
		Max:   "+inf",
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	if len(oldest) == 0 {
		return l.now(), nil
	}
	return time.UnixMilli(int64(oldest[0].Score)).Add(l.window), nil
}

func (l *RedisLimiter) key(client, provider string) string {
	return l.prefix + "ratelimit:" + provider + ":" + client
}

// windowStart 返回不含边界的窗口起点，与脚本的清理条件保持一致。
func (l *RedisLimiter) windowStart() string {
	return "(" + strconv.FormatInt(l.now().UnixMilli()-l.window.Milliseconds(), 10)
}
