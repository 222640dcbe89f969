package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"streamqos/pkg/model"
)

// Uploader 把一条样本发送到 server。
type Uploader interface {
	Upload(ctx context.Context, sample *model.Sample) error
}

// SnapshotSource 提供所有流的当前快照，并在上报成功后清除新数据标记。
type SnapshotSource interface {
	Snapshots() []model.StreamStatus
	ClearNewData(stream string)
}

// Reporter 每个周期把有新数据的流的快照作为样本上报；单条失败只记日志，不影响下一条。
// 没有新包的流（暂停或已经断流）不重复上报，server 端最后一条样本的时间即为最后活动时间。
type Reporter struct {
	Agent    string
	Interval time.Duration
	Source   SnapshotSource
	Uploader Uploader
	Now      func() time.Time
}

// Run 阻塞直到 ctx 结束。
func (r *Reporter) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		r.Interval = 5 * time.Second
	}
	log := logrus.WithFields(logrus.Fields{"component": "report", "agent": r.Agent})

	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			sent, failed := r.ReportOnce(ctx)
			if failed > 0 {
				log.WithFields(logrus.Fields{"sent": sent, "failed": failed}).Warn("上报失败（忽略继续）")
			}
		}
	}
}

// ReportOnce 上报一轮，返回成功与失败的条数。
func (r *Reporter) ReportOnce(ctx context.Context) (sent, failed int) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	at := now()
	for _, st := range r.Source.Snapshots() {
		// 从未计算过的流没有可上报的内容
		if st.Metrics.Timestamp.IsZero() || !st.Updated {
			continue
		}
		s := model.NewSample(r.Agent, st.Stream, st.Metrics, st.Fresh, at)
		if err := r.Uploader.Upload(ctx, &s); err != nil {
			logrus.WithError(err).WithField("stream", st.Stream).Debug("上报样本失败")
			failed++
			continue
		}
		r.Source.ClearNewData(st.Stream)
		sent++
	}
	return sent, failed
}
