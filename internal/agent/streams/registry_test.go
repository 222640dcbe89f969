package streams

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqos/internal/agent/analyzer"
	"streamqos/internal/agent/packet/packettest"
)

func testConfig() analyzer.Config {
	cfg := analyzer.DefaultConfig()
	cfg.UpdateInterval = 5 * time.Millisecond
	return cfg
}

func TestRegistrySeparatesFlows(t *testing.T) {
	r, err := New(context.Background(), testConfig(), 8)
	require.NoError(t, err)
	defer r.Close()

	now := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, r.Ingest(packettest.RTP{SrcIP: "10.0.0.1", SrcPort: 16400, Sequence: uint16(i)}.IPv4(), now))
	}
	for i := 0; i < 5; i++ {
		require.True(t, r.Ingest(packettest.RTP{SrcIP: "10.0.0.2", SrcPort: 16400, Sequence: uint16(i)}.IPv4(), now))
	}
	assert.False(t, r.Ingest(packettest.TCP("10.0.0.1", "10.0.0.9", 554, 40000, []byte("OPTIONS")), now))
	assert.False(t, r.Ingest([]byte{1, 2, 3}, now))

	stats := r.Stats()
	assert.Equal(t, 2, stats.Streams)
	assert.Equal(t, uint64(1), stats.Other)
	assert.Equal(t, uint64(1), stats.Malformed)

	a, ok := r.Lookup("10.0.0.2:16400->192.168.1.10:16402")
	require.True(t, ok)
	assert.Equal(t, 5, a.Buffered())

	require.Eventually(t, func() bool {
		snaps := r.Snapshots()
		return len(snaps) == 2 && snaps[0].Fresh && snaps[1].Fresh &&
			snaps[0].Metrics.TotalPackets == 3 && snaps[1].Metrics.TotalPackets == 5
	}, 2*time.Second, 5*time.Millisecond)

	_, ok = r.Lookup("1.2.3.4:1->5.6.7.8:2")
	assert.False(t, ok)
}

func TestRegistryEvictsLeastRecentlyUsed(t *testing.T) {
	r, err := New(context.Background(), testConfig(), 2)
	require.NoError(t, err)
	defer r.Close()

	now := time.Now()
	r.Ingest(packettest.RTP{SrcPort: 1001}.IPv4(), now)
	r.Ingest(packettest.RTP{SrcPort: 1002}.IPv4(), now)
	r.Ingest(packettest.RTP{SrcPort: 1001}.IPv4(), now)
	r.Ingest(packettest.RTP{SrcPort: 1003}.IPv4(), now)

	assert.Equal(t, 2, r.Stats().Streams)
	_, ok := r.Lookup("192.168.1.64:1002->192.168.1.10:16402")
	assert.False(t, ok, "least recently used stream should be evicted")
	_, ok = r.Lookup("192.168.1.64:1001->192.168.1.10:16402")
	assert.True(t, ok)
}

func TestRegistryReset(t *testing.T) {
	r, err := New(context.Background(), testConfig(), 4)
	require.NoError(t, err)
	defer r.Close()

	now := time.Now()
	for i := 0; i < 4; i++ {
		r.Ingest(packettest.RTP{Sequence: uint16(i)}.IPv4(), now)
	}
	r.Ingest(packettest.TCP("1.1.1.1", "2.2.2.2", 1, 2, nil), now)

	require.NoError(t, r.Reset())
	assert.Zero(t, r.Stats().Other)
	for _, s := range r.Snapshots() {
		assert.Zero(t, s.Metrics.TotalPackets)
	}
	a, ok := r.Lookup("192.168.1.64:16400->192.168.1.10:16402")
	require.True(t, ok)
	assert.Zero(t, a.Buffered())
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	cfg := analyzer.DefaultConfig()
	cfg.Capacity = 0
	_, err := New(context.Background(), cfg, 4)
	require.Error(t, err)
}

func TestRegistryOversizedAndFragments(t *testing.T) {
	r, err := New(context.Background(), testConfig(), 8)
	require.NoError(t, err)
	defer r.Close()

	now := time.Now()
	assert.True(t, r.Ingest(packettest.RTP{Payload: make([]byte, 9000), Sequence: 1}.IPv4(), now))

	frag := packettest.RTP{Sequence: 2}.IPv4()
	frag[6] = 0x20 // MF
	assert.False(t, r.Ingest(frag, now))

	stats := r.Stats()
	assert.Equal(t, 1, stats.Streams)
	assert.Equal(t, uint64(1), stats.Truncated)
	assert.Zero(t, stats.Malformed)
	assert.Equal(t, uint64(1), stats.Other)
}

func TestRegistryPauseAndNewData(t *testing.T) {
	r, err := New(context.Background(), testConfig(), 8)
	require.NoError(t, err)
	defer r.Close()

	const stream = "192.168.1.64:16400->192.168.1.10:16402"
	now := time.Now()
	require.True(t, r.Ingest(packettest.RTP{Sequence: 1}.IPv4(), now))

	snaps := r.Snapshots()
	require.Len(t, snaps, 1)
	require.Equal(t, stream, snaps[0].Stream)
	assert.True(t, snaps[0].Updated)
	assert.False(t, snaps[0].Paused)

	r.ClearNewData(stream)
	assert.False(t, r.Snapshots()[0].Updated)

	require.True(t, r.SetEnabled(stream, false))
	assert.False(t, r.Ingest(packettest.RTP{Sequence: 2}.IPv4(), now))
	snaps = r.Snapshots()
	assert.True(t, snaps[0].Paused)
	assert.False(t, snaps[0].Updated)

	require.True(t, r.SetEnabled(stream, true))
	assert.True(t, r.Ingest(packettest.RTP{Sequence: 3}.IPv4(), now))
	assert.True(t, r.Snapshots()[0].Updated)

	assert.False(t, r.SetEnabled("1.2.3.4:1->5.6.7.8:2", false))
}
