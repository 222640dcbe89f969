package export

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "streamqos"

// Collector 在每次抓取时读取所有流的快照，生成带 stream 标签的常量指标。
// 流被淘汰后对应的时间序列自然消失，不需要手动删除标签。
type Collector struct {
	src Source

	jitter     *prometheus.Desc
	delay      *prometheus.Desc
	latency    *prometheus.Desc
	bitrate    *prometheus.Desc
	packetLoss *prometheus.Desc
	fresh      *prometheus.Desc
	paused     *prometheus.Desc
	packets    *prometheus.Desc
	lost       *prometheus.Desc

	streams   *prometheus.Desc
	other     *prometheus.Desc
	malformed *prometheus.Desc
	truncated *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector(src Source) *Collector {
	label := []string{"stream"}
	return &Collector{
		src:        src,
		jitter:     prometheus.NewDesc(namespace+"_jitter_ms", "Mean inter-arrival jitter in milliseconds.", label, nil),
		delay:      prometheus.NewDesc(namespace+"_delay_ms", "Mean buffer residency time in milliseconds.", label, nil),
		latency:    prometheus.NewDesc(namespace+"_latency_ms", "Weighted blend of jitter and delay in milliseconds.", label, nil),
		bitrate:    prometheus.NewDesc(namespace+"_bitrate_mbps", "Throughput over the last bitrate window in Mbit/s.", label, nil),
		packetLoss: prometheus.NewDesc(namespace+"_packet_loss_percent", "Sequence-gap loss over the sample window.", label, nil),
		fresh:      prometheus.NewDesc(namespace+"_fresh", "1 if the stream metrics were recomputed within two update intervals.", label, nil),
		paused:     prometheus.NewDesc(namespace+"_paused", "1 if analysis of the stream is paused.", label, nil),
		packets:    prometheus.NewDesc(namespace+"_packets_total", "Packets accepted by the stream analyzer.", label, nil),
		lost:       prometheus.NewDesc(namespace+"_lost_packets", "Packets missing from the current sample window.", label, nil),
		streams:    prometheus.NewDesc(namespace+"_streams", "Streams currently tracked.", nil, nil),
		other:      prometheus.NewDesc(namespace+"_other_packets_total", "Valid IPv4 packets that were not RTP.", nil, nil),
		malformed:  prometheus.NewDesc(namespace+"_malformed_packets_total", "Packets rejected by the parser.", nil, nil),
		truncated:  prometheus.NewDesc(namespace+"_truncated_packets_total", "Packets larger than the size limit.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.jitter, c.delay, c.latency, c.bitrate, c.packetLoss, c.fresh, c.paused, c.packets, c.lost,
		c.streams, c.other, c.malformed, c.truncated,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, st := range c.src.Snapshots() {
		m := st.Metrics
		gauge := func(d *prometheus.Desc, v float64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, st.Stream)
		}
		gauge(c.jitter, m.Jitter)
		gauge(c.delay, m.Delay)
		gauge(c.latency, m.Latency)
		gauge(c.bitrate, m.Bitrate)
		gauge(c.packetLoss, m.PacketLoss)
		gauge(c.lost, float64(m.LostPackets))
		if st.Fresh {
			gauge(c.fresh, 1)
		} else {
			gauge(c.fresh, 0)
		}
		if st.Paused {
			gauge(c.paused, 1)
		} else {
			gauge(c.paused, 0)
		}
		// 重置后会从 0 重新计数，Prometheus 按 counter reset 处理
		ch <- prometheus.MustNewConstMetric(c.packets, prometheus.CounterValue, float64(m.TotalPackets), st.Stream)
	}

	s := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.streams, prometheus.GaugeValue, float64(s.Streams))
	ch <- prometheus.MustNewConstMetric(c.other, prometheus.CounterValue, float64(s.Other))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(s.Malformed))
	ch <- prometheus.MustNewConstMetric(c.truncated, prometheus.CounterValue, float64(s.Truncated))
}
