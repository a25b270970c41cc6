// Package ratelimit implements sliding-window admission control per (client, provider).
package ratelimit

import (
	"context"
	"time"
)

// 默认值
const (
	DefaultLimit       = 60
	DefaultWindow      = 60 * time.Second
	DefaultIdleTimeout = 5 * time.Minute
)

// Limiter 对每个 (client, provider) 维护一个滑动窗口。
// Admit 被拒绝时不会记录本次请求。
type Limiter interface {
	Admit(ctx context.Context, client, provider string) (bool, error)
	Remaining(ctx context.Context, client, provider string) (int, error)
	ResetAt(ctx context.Context, client, provider string) (time.Time, error)
	Limit() int
}

// Option 配置限流器。
type Option func(*options)

type options struct {
	now         func() time.Time
	idleTimeout time.Duration
	keyPrefix   string
}

func defaultOptions() options {
	return options{
		now:         time.Now,
		idleTimeout: DefaultIdleTimeout,
		keyPrefix:   "costsense:",
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithIdleTimeout 设置窗口闲置多久后可被清理。
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.idleTimeout = d
		}
	}
}

// WithKeyPrefix 设置 Redis 键前缀。
func WithKeyPrefix(prefix string) Option {
	return func(o *options) {
		o.keyPrefix = prefix
	}
}

func normalize(limit int, window time.Duration) (int, time.Duration) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return limit, window
}
