package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowKey struct {
	client   string
	provider string
}

// MemoryLimiter 是进程内的滑动窗口限流器，所有窗口由一把互斥锁保护。
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	idle    time.Duration
	now     func() time.Time
	windows map[windowKey][]time.Time
}

// NewMemoryLimiter 创建内存限流器，limit 或 window 非正时使用默认值。
func NewMemoryLimiter(limit int, window time.Duration, opts ...Option) *MemoryLimiter {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	limit, window = normalize(limit, window)
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		idle:    o.idleTimeout,
		now:     o.now,
		windows: make(map[windowKey][]time.Time),
	}
}

// Limit 返回窗口内允许的最大请求数。
func (l *MemoryLimiter) Limit() int {
	return l.limit
}

// Admit 清理过期记录后判断是否放行，放行时记录当前时间。
func (l *MemoryLimiter) Admit(_ context.Context, client, provider string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := windowKey{client: client, provider: provider}
	stamps := l.purge(k, now)
	if len(stamps) >= l.limit {
		return false, nil
	}
	l.windows[k] = append(stamps, now)
	return true, nil
}

// Remaining 返回当前窗口内剩余的请求数。
func (l *MemoryLimiter) Remaining(_ context.Context, client, provider string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stamps := l.purge(windowKey{client: client, provider: provider}, l.now())
	remaining := l.limit - len(stamps)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetAt 返回最早一条记录移出窗口的时间，窗口为空时返回当前时间。
func (l *MemoryLimiter) ResetAt(_ context.Context, client, provider string) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	stamps := l.purge(windowKey{client: client, provider: provider}, now)
	if len(stamps) == 0 {
		return now, nil
	}
	return stamps[0].Add(l.window), nil
}

// Sweep 删除最新记录早于闲置阈值的窗口，返回删除的数量。
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idle)
	removed := 0
	for k, stamps := range l.windows {
		if len(stamps) == 0 || stamps[len(stamps)-1].Before(cutoff) {
			delete(l.windows, k)
			removed++
		}
	}
	return removed
}

// Len 返回当前跟踪的窗口数量。
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// purge 必须在持锁时调用。
func (l *MemoryLimiter) purge(k windowKey, now time.Time) []time.Time {
	stamps := l.windows[k]
	i := 0
	for i < len(stamps) && now.Sub(stamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		stamps = append([]time.Time(nil), stamps[i:]...)
		l.windows[k] = stamps
	}
	return stamps
}
