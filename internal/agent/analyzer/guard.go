package analyzer

import (
	"sync"
	"time"
)

// guard 是带超时的互斥锁。sync.Mutex 无法限时等待，这里用容量为 1 的 channel 实现。
// 等待用的 timer 放在池里复用，争用路径上也不产生新分配。
type guard struct {
	slot   chan struct{}
	wait   time.Duration
	timers sync.Pool
}

func newGuard(wait time.Duration) *guard {
	return &guard{slot: make(chan struct{}, 1), wait: wait}
}

// lock 最多等待 g.wait；返回 false 表示未拿到锁，调用方必须降级处理。
func (g *guard) lock() bool {
	select {
	case g.slot <- struct{}{}:
		return true
	default:
	}
	if g.wait <= 0 {
		return false
	}

	t := g.timer()
	defer g.release(t)
	select {
	case g.slot <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

func (g *guard) unlock() {
	<-g.slot
}

func (g *guard) timer() *time.Timer {
	if t, ok := g.timers.Get().(*time.Timer); ok {
		t.Reset(g.wait)
		return t
	}
	return time.NewTimer(g.wait)
}

// release 停止 timer 并排空 channel，保证下次 Reset 后不会读到旧的触发。
func (g *guard) release(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	g.timers.Put(t)
}
