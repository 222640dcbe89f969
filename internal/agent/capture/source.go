package capture

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
)

// Source 是原始帧的来源：网卡或抓包文件。
type Source interface {
	ReadPacket(ctx context.Context) ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close() error
}

// Sink 接收从 IPv4 头开始的包。
type Sink interface {
	Ingest(data []byte, arrival time.Time) bool
}

// PumpStats 是一次 Pump 的统计。
type PumpStats struct {
	Frames   uint64
	NonIPv4  uint64
	Accepted uint64
}

// Pump 持续从 src 读帧、剥掉链路层后交给 sink，直到 ctx 结束或 src 读完。
// 读到 io.EOF（文件回放结束）时正常返回。
func Pump(ctx context.Context, src Source, sink Sink) (PumpStats, error) {
	var st PumpStats
	dec, err := NewLinkDecoder(src.LinkType())
	if err != nil {
		return st, err
	}
	log := logrus.WithField("component", "capture")

	for {
		data, ci, err := src.ReadPacket(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.WithField("frames", st.Frames).Info("抓包文件回放结束")
				return st, nil
			}
			if ctx.Err() != nil {
				return st, nil
			}
			return st, err
		}
		st.Frames++

		ip, ok := dec.IPv4(data)
		if !ok {
			st.NonIPv4++
			continue
		}
		if sink.Ingest(ip, ci.Timestamp) {
			st.Accepted++
		}
	}
}
