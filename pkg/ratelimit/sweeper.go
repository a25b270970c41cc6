package ratelimit

import (
	"context"
	"sync"
	"time"

	"costsense-go/pkg/log"
)

// Sweepable 是可以被定期清理的状态。
type Sweepable interface {
	Sweep() int
}

// Sweeper 按固定间隔调用 Sweep，与请求流量无关。
type Sweeper struct {
	target   Sweepable
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// NewSweeper 创建清理任务，interval 非正时为 60 秒。
func NewSweeper(target Sweepable, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{target: target, interval: interval}
}

// Start 在后台运行清理循环，直到 ctx 取消或调用 Stop。
func (s *Sweeper) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop 停止清理循环并等待其退出。
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Rate limit sweeper stopped")
			return
		case <-ticker.C:
			if removed := s.target.Sweep(); removed > 0 {
				log.Debugw("Swept idle rate limit windows", "removed", removed)
			}
		}
	}
}
