package storage

import (
	"context"
	"database/sql"
	"fmt"

	"streamqos/pkg/model"
)

type Store interface {
	Insert(ctx context.Context, sample *model.Sample) error
	QueryByStream(ctx context.Context, stream string, limit int) ([]model.Sample, error)
	QueryByAgent(ctx context.Context, agent string, limit int) ([]model.Sample, error)
	// Latest 返回每条流最新的一条样本。
	Latest(ctx context.Context, limit int) ([]model.Sample, error)
	Close() error
}

const DefaultLimit = 200

// 两种后端共用的列顺序，Insert 的参数与 ScanSamples 都按这个顺序。
const Columns = `timestamp, agent, stream, fresh, jitter_ms, delay_ms, latency_ms,
	bitrate_mbps, packet_loss, total_packets, lost_packets`

// InsertArgs 按 Columns 的顺序展开样本。
func InsertArgs(s *model.Sample) []any {
	return []any{
		s.Timestamp,
		s.Agent,
		s.Stream,
		s.Fresh,
		s.Jitter,
		s.Delay,
		s.Latency,
		s.Bitrate,
		s.PacketLoss,
		s.TotalPackets,
		s.LostPackets,
	}
}

func ScanSamples(rows *sql.Rows) ([]model.Sample, error) {
	defer rows.Close()
	out := make([]model.Sample, 0, 64)
	for rows.Next() {
		var r model.Sample
		if err := rows.Scan(
			&r.Timestamp,
			&r.Agent,
			&r.Stream,
			&r.Fresh,
			&r.Jitter,
			&r.Delay,
			&r.Latency,
			&r.Bitrate,
			&r.PacketLoss,
			&r.TotalPackets,
			&r.LostPackets,
		); err != nil {
			return nil, fmt.Errorf("读取行失败：%w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历结果失败：%w", err)
	}
	return out, nil
}
