package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqos/internal/agent/packet/packettest"
)

type recordingSink struct {
	packets  [][]byte
	arrivals []time.Time
}

func (s *recordingSink) Ingest(data []byte, arrival time.Time) bool {
	s.packets = append(s.packets, append([]byte(nil), data...))
	s.arrivals = append(s.arrivals, arrival)
	return true
}

func writePcap(t *testing.T, frames [][]byte, gap time.Duration) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * gap),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		require.NoError(t, w.WritePacket(ci, frame))
	}
	return path
}

func TestPumpReplaysPcap(t *testing.T) {
	var frames [][]byte
	for i := 0; i < 5; i++ {
		frames = append(frames, packettest.RTP{Sequence: uint16(i), Timestamp: uint32(i) * 900}.Ethernet())
	}
	arp := packettest.WithEthernet([]byte{0x60, 0, 0, 0})
	arp[12], arp[13] = 0x08, 0x06
	frames = append(frames, arp)

	src, err := OpenFile(writePcap(t, frames, 10*time.Millisecond))
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, layers.LinkTypeEthernet, src.LinkType())

	sink := &recordingSink{}
	before := time.Now()
	st, err := Pump(context.Background(), src, sink)
	require.NoError(t, err)

	assert.Equal(t, uint64(6), st.Frames)
	assert.Equal(t, uint64(1), st.NonIPv4)
	assert.Equal(t, uint64(5), st.Accepted)
	require.Len(t, sink.arrivals, 5)

	// 到达时间平移到回放开始时刻，保留原始间隔
	assert.False(t, sink.arrivals[0].Before(before))
	for i := 1; i < len(sink.arrivals); i++ {
		assert.Equal(t, 10*time.Millisecond, sink.arrivals[i].Sub(sink.arrivals[i-1]))
	}
}

func TestFileSourceRealtimeHonoursContext(t *testing.T) {
	frames := [][]byte{
		packettest.RTP{Sequence: 1}.Ethernet(),
		packettest.RTP{Sequence: 2}.Ethernet(),
	}
	src, err := OpenFile(writePcap(t, frames, time.Hour))
	require.NoError(t, err)
	defer src.Close()
	src.Realtime = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sink := &recordingSink{}
	st, err := Pump(ctx, src, sink)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Frames)
}

func TestOpenFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.pcap")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a capture file"), 0o600))
	_, err := OpenFile(path)
	require.Error(t, err)
}
