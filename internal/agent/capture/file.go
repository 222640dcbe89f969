package capture

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// FileSource 回放 pcap / pcapng 文件。
//
// 到达时间会被平移到回放开始的时刻，这样 delay 这类依赖当前时间的指标仍然有意义；
// Realtime 为 true 时按原始包间隔休眠，否则尽快读完。
type FileSource struct {
	f        *os.File
	r        packetReader
	linkType layers.LinkType

	Realtime bool

	first time.Time
	start time.Time
}

var _ Source = (*FileSource)(nil)

func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开抓包文件失败：%w", err)
	}
	s := &FileSource{f: f}

	if r, err := pcapgo.NewReader(bufio.NewReader(f)); err == nil {
		s.r, s.linkType = r, r.LinkType()
		return s, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("重置文件偏移失败：%w", err)
	}
	ng, err := pcapgo.NewNgReader(bufio.NewReader(f), pcapgo.DefaultNgReaderOptions)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("无法识别抓包文件格式（pcap/pcapng）：%w", err)
	}
	s.r, s.linkType = ng, ng.LinkType()
	return s, nil
}

func (s *FileSource) LinkType() layers.LinkType {
	return s.linkType
}

func (s *FileSource) ReadPacket(ctx context.Context) ([]byte, gopacket.CaptureInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, gopacket.CaptureInfo{}, err
	}
	data, ci, err := s.r.ReadPacketData()
	if err != nil {
		return nil, gopacket.CaptureInfo{}, err
	}

	if s.first.IsZero() {
		s.first, s.start = ci.Timestamp, time.Now()
	}
	offset := ci.Timestamp.Sub(s.first)
	if offset < 0 {
		offset = 0
	}
	ci.Timestamp = s.start.Add(offset)

	if s.Realtime {
		if wait := time.Until(ci.Timestamp); wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, gopacket.CaptureInfo{}, ctx.Err()
			case <-t.C:
			}
		}
	}
	return data, ci, nil
}

func (s *FileSource) Close() error {
	return s.f.Close()
}
