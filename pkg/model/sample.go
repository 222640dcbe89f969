package model

import "time"

// Sample 是 agent 定期上报给 server 的一条记录。
type Sample struct {
	Timestamp    time.Time `json:"timestamp"`
	Agent        string    `json:"agent"`
	Stream       string    `json:"stream"`
	Fresh        bool      `json:"fresh"`
	Jitter       float64   `json:"jitter"`
	Delay        float64   `json:"delay"`
	Latency      float64   `json:"latency"`
	Bitrate      float64   `json:"bitrate"`
	PacketLoss   float64   `json:"packetLoss"`
	TotalPackets uint64    `json:"totalPackets"`
	LostPackets  uint64    `json:"lostPackets"`
}

func NewSample(agent, stream string, m Metrics, fresh bool, at time.Time) Sample {
	return Sample{
		Timestamp:    at,
		Agent:        agent,
		Stream:       stream,
		Fresh:        fresh,
		Jitter:       m.Jitter,
		Delay:        m.Delay,
		Latency:      m.Latency,
		Bitrate:      m.Bitrate,
		PacketLoss:   m.PacketLoss,
		TotalPackets: m.TotalPackets,
		LostPackets:  m.LostPackets,
	}
}

// Metrics 取出样本里的指标部分，时间戳用上报时间。
func (s Sample) Metrics() Metrics {
	return Metrics{
		Jitter:       s.Jitter,
		Delay:        s.Delay,
		Latency:      s.Latency,
		Bitrate:      s.Bitrate,
		PacketLoss:   s.PacketLoss,
		Timestamp:    s.Timestamp,
		TotalPackets: s.TotalPackets,
		LostPackets:  s.LostPackets,
	}
}
