package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"streamqos/internal/agent/clockrate"
	"streamqos/internal/agent/packet"
	"streamqos/internal/agent/ring"
	"streamqos/pkg/model"
)

var (
	// ErrLockTimeout 表示在 LockTimeout 内没拿到状态锁。
	ErrLockTimeout = errors.New("获取分析器状态锁超时")
	ErrRunning     = errors.New("分析器已在运行")
)

// Analyzer 维护一条媒体流的 QoS 状态。
//
// 写入路径（Ingest）与周期重算（Recompute）可以在不同 goroutine 上并发执行，
// 读取方通过 Snapshot/IsFresh 拿到完整的一份拷贝。所有可变状态只在 guard 内访问。
type Analyzer struct {
	cfg    Config
	now    func() time.Time
	health HealthChecker
	log    *logrus.Entry

	guard *guard

	enabled atomic.Bool
	newData atomic.Bool

	// 以下字段只能在持有 guard 时访问
	sessions      *ring.Buffer[sessionSample]
	arrivals      *ring.Buffer[time.Time]
	sequences     *ring.Buffer[uint16]
	seqScratch    []uint16
	metrics       model.Metrics
	totalPackets  uint64
	bitrateBytes  uint64
	lastBitrateAt time.Time

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Analyzer)

// WithClock 替换时钟，测试用。
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// WithHealthChecker 设置内存健康检查；不设置时视为始终健康。
func WithHealthChecker(h HealthChecker) Option {
	return func(a *Analyzer) { a.health = h }
}

func WithLogger(l *logrus.Entry) Option {
	return func(a *Analyzer) { a.log = l }
}

func New(cfg Config, opts ...Option) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Analyzer{
		cfg: cfg,
		now: time.Now,
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(a)
	}

	var err error
	if a.sessions, err = ring.New[sessionSample](cfg.Capacity); err != nil {
		return nil, fmt.Errorf("创建 RTP 时间戳缓冲失败：%w", err)
	}
	if a.arrivals, err = ring.New[time.Time](cfg.Capacity); err != nil {
		return nil, fmt.Errorf("创建到达时间缓冲失败：%w", err)
	}
	if a.sequences, err = ring.New[uint16](cfg.Capacity); err != nil {
		return nil, fmt.Errorf("创建序列号缓冲失败：%w", err)
	}
	a.seqScratch = make([]uint16, 0, cfg.Capacity)
	a.guard = newGuard(cfg.LockTimeout)
	a.lastBitrateAt = a.now()
	a.enabled.Store(true)
	return a, nil
}

func (a *Analyzer) Config() Config {
	return a.cfg
}

// Begin 启动周期重算。重复调用返回 ErrRunning。
func (a *Analyzer) Begin(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.cancel != nil {
		return ErrRunning
	}

	if !a.guard.lock() {
		return ErrLockTimeout
	}
	a.lastBitrateAt = a.now()
	a.guard.unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.loop(ctx, a.done)

	a.log.WithFields(logrus.Fields{
		"capacity": a.cfg.Capacity,
		"interval": a.cfg.UpdateInterval,
	}).Debug("分析器已启动")
	return nil
}

// Stop 停止周期重算并等待后台 goroutine 退出；未启动时直接返回。
func (a *Analyzer) Stop() {
	a.runMu.Lock()
	cancel, done := a.cancel, a.done
	a.cancel, a.done = nil, nil
	a.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (a *Analyzer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(a.cfg.UpdateInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !a.Recompute() {
				a.log.Debug("获取状态锁超时，跳过本轮指标计算")
			}
		}
	}
}

// Ingest 解析并写入一个从 IPv4 头开始的包，返回该包是否被计入。
// 畸形输入、内存不足、锁超时都只是丢弃这个包，不会返回错误。
func (a *Analyzer) Ingest(data []byte, arrival time.Time) bool {
	if !a.enabled.Load() {
		return false
	}
	if a.health != nil && !a.health.Healthy() {
		return false
	}
	rec, ok := packet.Parse(data, arrival, a.cfg.MaxPacketSize)
	if rec.Truncated {
		a.log.WithFields(logrus.Fields{
			"size": len(data),
			"max":  a.cfg.MaxPacketSize,
		}).Warn("包长度超过上限，已截断")
	}
	if !ok {
		return false
	}
	return a.IngestRecord(&rec)
}

// IngestRecord 写入已解析的包。只有 RTP 包会进入三个缓冲区，且三者同步写入。
func (a *Analyzer) IngestRecord(rec *packet.Record) bool {
	if !a.enabled.Load() {
		return false
	}
	if a.health != nil && !a.health.Healthy() {
		return false
	}
	if !a.guard.lock() {
		a.log.Debug("获取状态锁超时，丢弃该包")
		return false
	}
	a.totalPackets++
	a.bitrateBytes += uint64(rec.Length)
	if rec.Stream {
		a.sessions.Push(sessionSample{ts: rec.Timestamp, clockRate: clockrate.Resolve(rec.PayloadType)})
		a.arrivals.Push(rec.Arrival)
		a.sequences.Push(rec.Sequence)
		a.newData.Store(true)
	}
	a.guard.unlock()
	return true
}

// SetEnabled 暂停或恢复分析。暂停期间到达的包直接丢弃，不计入任何计数；
// 周期重算照常进行，已有窗口里的样本会随时间老化。
func (a *Analyzer) SetEnabled(on bool) {
	if a.enabled.Swap(on) != on {
		a.log.WithField("enabled", on).Info("分析状态已切换")
	}
}

func (a *Analyzer) Enabled() bool {
	return a.enabled.Load()
}

// HasNewData 表示自上次 ClearNewData 以来是否写入过 RTP 样本。
func (a *Analyzer) HasNewData() bool {
	return a.newData.Load()
}

func (a *Analyzer) ClearNewData() {
	a.newData.Store(false)
}

// Recompute 在一次持锁过程中重算全部指标。拿不到锁时返回 false，保留上一轮结果。
func (a *Analyzer) Recompute() bool {
	if !a.guard.lock() {
		return false
	}
	defer a.guard.unlock()
	a.computeLocked(a.now())
	return true
}

func (a *Analyzer) computeLocked(now time.Time) {
	m := &a.metrics

	m.Jitter = jitterMS(a.sessions, a.arrivals)
	m.Delay = residencyMS(a.arrivals, now)
	m.Latency = blendLatency(m.Jitter, m.Delay, a.cfg.JitterWeight, a.cfg.DelayWeight)

	if elapsed := now.Sub(a.lastBitrateAt); elapsed >= a.cfg.BitrateWindow {
		m.Bitrate = bitrateMbps(a.bitrateBytes, elapsed)
		a.bitrateBytes = 0
		a.lastBitrateAt = now
	}

	a.seqScratch = a.sequences.AppendTo(a.seqScratch[:0])
	loss := sequenceLoss(a.seqScratch)
	m.PacketLoss = loss.percent
	if loss.expected > 0 {
		m.LostPackets = loss.lost
	}

	m.TotalPackets = a.totalPackets
	m.Timestamp = now
}

// Snapshot 返回最近一次完整计算的结果。锁超时时返回零值，调用方应视为“监控降级”。
func (a *Analyzer) Snapshot() model.Metrics {
	m, _ := a.Read()
	return m
}

// IsFresh 判断最近一次计算是否在 2 个更新周期之内。
func (a *Analyzer) IsFresh() bool {
	_, fresh := a.Read()
	return fresh
}

// Read 在一次持锁内同时取出快照与新鲜度。
func (a *Analyzer) Read() (model.Metrics, bool) {
	if !a.guard.lock() {
		return model.Metrics{}, false
	}
	m := a.metrics
	a.guard.unlock()
	return m, a.fresh(m.Timestamp)
}

func (a *Analyzer) fresh(last time.Time) bool {
	if last.IsZero() {
		return false
	}
	return a.now().Sub(last) < 2*a.cfg.UpdateInterval
}

// Reset 清零计数器与指标并清空三个缓冲区。与 Ingest 互斥，不会留下半清空的状态。
func (a *Analyzer) Reset() error {
	if !a.guard.lock() {
		return ErrLockTimeout
	}
	a.sessions.Clear()
	a.arrivals.Clear()
	a.sequences.Clear()
	a.metrics = model.Metrics{}
	a.totalPackets = 0
	a.bitrateBytes = 0
	a.lastBitrateAt = a.now()
	a.guard.unlock()
	a.newData.Store(false)
	return nil
}

// Buffered 返回当前窗口内的 RTP 样本数。
func (a *Analyzer) Buffered() int {
	if !a.guard.lock() {
		return 0
	}
	defer a.guard.unlock()
	return a.sessions.Len()
}
