package analyzer

import (
	"context"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker 在处理每个包之前被询问；返回 false 时该包被跳过。
type HealthChecker interface {
	Healthy() bool
}

const heapObjectsMetric = "/memory/classes/heap/objects:bytes"

// HeapGuard 按堆上存活对象字节数判断内存是否健康。
// Healthy 只读取缓存结果，真正的采样在 Refresh 中完成。
type HeapGuard struct {
	limit   uint64
	healthy atomic.Bool
	last    atomic.Uint64

	mu      sync.Mutex
	samples []metrics.Sample
}

// NewHeapGuard 创建内存守卫；limitBytes 为 0 表示不限制。
func NewHeapGuard(limitBytes uint64) *HeapGuard {
	g := &HeapGuard{
		limit:   limitBytes,
		samples: []metrics.Sample{{Name: heapObjectsMetric}},
	}
	g.healthy.Store(true)
	return g
}

func (g *HeapGuard) Healthy() bool {
	return g.healthy.Load()
}

// HeapBytes 返回最近一次采样值。
func (g *HeapGuard) HeapBytes() uint64 {
	return g.last.Load()
}

// Refresh 重新采样并更新健康状态。
func (g *HeapGuard) Refresh() bool {
	g.mu.Lock()
	metrics.Read(g.samples)
	v := g.samples[0].Value
	g.mu.Unlock()

	if v.Kind() != metrics.KindUint64 {
		// 运行时不支持该指标时视为健康
		g.healthy.Store(true)
		return true
	}
	used := v.Uint64()
	g.last.Store(used)
	ok := g.limit == 0 || used < g.limit
	g.healthy.Store(ok)
	return ok
}

// Run 周期性调用 Refresh，直到 ctx 结束。
func (g *HeapGuard) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	g.Refresh()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			g.Refresh()
		}
	}
}
