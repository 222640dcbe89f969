package streams

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"streamqos/internal/agent/analyzer"
	"streamqos/internal/agent/packet"
	"streamqos/pkg/model"
)

const DefaultMaxStreams = 64

// Registry 为每条 RTP 流（源地址端口 -> 目的地址端口）维护一个独立的分析器。
// 流的数量有上限，超过时淘汰最久没有收到包的流。
type Registry struct {
	ctx  context.Context
	cfg  analyzer.Config
	opts []analyzer.Option
	log  *logrus.Entry

	mu      sync.Mutex // 只用于串行化新流的创建
	streams *lru.Cache[packet.Flow, *analyzer.Analyzer]

	other     atomic.Uint64
	malformed atomic.Uint64
	truncated atomic.Uint64
}

// Stats 是注册表层面的计数。
type Stats struct {
	Streams   int    `json:"streams"`
	Other     uint64 `json:"other"`
	Malformed uint64 `json:"malformed"`
	Truncated uint64 `json:"truncated"`
}

// New 创建注册表。新建的分析器在 ctx 下启动，ctx 结束时随之停止周期计算。
func New(ctx context.Context, cfg analyzer.Config, maxStreams int, opts ...analyzer.Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if maxStreams <= 0 {
		maxStreams = DefaultMaxStreams
	}
	r := &Registry{
		ctx:  ctx,
		cfg:  cfg,
		opts: opts,
		log:  logrus.WithField("component", "streams"),
	}
	cache, err := lru.NewWithEvict[packet.Flow, *analyzer.Analyzer](maxStreams, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("创建流表失败：%w", err)
	}
	r.streams = cache
	return r, nil
}

func (r *Registry) onEvict(flow packet.Flow, a *analyzer.Analyzer) {
	a.Stop()
	r.log.WithField("stream", flow.String()).Info("流分析器已移除")
}

// Ingest 解析一个从 IPv4 头开始的包，RTP 包按流分发给对应分析器。
// 返回值表示包是否被某个分析器计入。
func (r *Registry) Ingest(data []byte, arrival time.Time) bool {
	rec, ok := packet.Parse(data, arrival, r.cfg.MaxPacketSize)
	if rec.Truncated {
		r.truncated.Add(1)
		r.log.WithField("size", len(data)).Warn("包长度超过上限，已截断")
	}
	if !ok {
		r.malformed.Add(1)
		return false
	}
	if !rec.Stream {
		r.other.Add(1)
		return false
	}

	a, err := r.analyzerFor(rec.Flow())
	if err != nil {
		r.log.WithError(err).Warn("创建流分析器失败")
		return false
	}
	return a.IngestRecord(&rec)
}

func (r *Registry) analyzerFor(flow packet.Flow) (*analyzer.Analyzer, error) {
	if a, ok := r.streams.Get(flow); ok {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.streams.Get(flow); ok {
		return a, nil
	}
	opts := append([]analyzer.Option{
		analyzer.WithLogger(r.log.WithField("stream", flow.String())),
	}, r.opts...)
	a, err := analyzer.New(r.cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.Begin(r.ctx); err != nil {
		return nil, err
	}
	r.streams.Add(flow, a)
	r.log.WithField("stream", flow.String()).Info("发现新的 RTP 流")
	return a, nil
}

// Lookup 按 "src:port->dst:port" 查找流。
func (r *Registry) Lookup(stream string) (*analyzer.Analyzer, bool) {
	for _, flow := range r.streams.Keys() {
		if flow.String() == stream {
			return r.streams.Peek(flow)
		}
	}
	return nil, false
}

// Snapshots 返回所有流的快照，按流名排序。
func (r *Registry) Snapshots() []model.StreamStatus {
	flows := r.streams.Keys()
	out := make([]model.StreamStatus, 0, len(flows))
	for _, flow := range flows {
		a, ok := r.streams.Peek(flow)
		if !ok {
			continue
		}
		m, fresh := a.Read()
		out = append(out, model.StreamStatus{
			Stream:  flow.String(),
			Fresh:   fresh,
			Paused:  !a.Enabled(),
			Updated: a.HasNewData(),
			Metrics: m,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stream < out[j].Stream })
	return out
}

// SetEnabled 暂停或恢复某条流的分析，流不存在时返回 false。
func (r *Registry) SetEnabled(stream string, on bool) bool {
	a, ok := r.Lookup(stream)
	if !ok {
		return false
	}
	a.SetEnabled(on)
	return true
}

// ClearNewData 在样本上报之后清除该流的新数据标记。
func (r *Registry) ClearNewData(stream string) {
	if a, ok := r.Lookup(stream); ok {
		a.ClearNewData()
	}
}

func (r *Registry) Stats() Stats {
	return Stats{
		Streams:   r.streams.Len(),
		Other:     r.other.Load(),
		Malformed: r.malformed.Load(),
		Truncated: r.truncated.Load(),
	}
}

// Reset 重置所有流的指标与注册表计数，流本身保留。
func (r *Registry) Reset() error {
	var errs []error
	for _, a := range r.streams.Values() {
		if err := a.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	r.other.Store(0)
	r.malformed.Store(0)
	r.truncated.Store(0)
	return errors.Join(errs...)
}

// Close 停止并移除所有分析器。
func (r *Registry) Close() {
	r.streams.Purge()
}
