package model

import "time"

// Metrics 是单条媒体流在某一时刻的 QoS 快照，JSON 字段名与看板约定一致。
type Metrics struct {
	Jitter       float64   `json:"jitter"`     // ms
	Delay        float64   `json:"delay"`      // ms，缓冲窗口内驻留时间，只是时延的近似
	Latency      float64   `json:"latency"`    // ms，jitter 与 delay 的加权估计
	Bitrate      float64   `json:"bitrate"`    // Mbps
	PacketLoss   float64   `json:"packetLoss"` // 百分比 [0,100]
	Timestamp    time.Time `json:"timestamp"`  // 最近一次计算时间
	TotalPackets uint64    `json:"totalPackets"`
	LostPackets  uint64    `json:"lostPackets"`
}

// StreamStatus 是某条流的当前快照及新鲜度，由 agent 本地接口返回。
type StreamStatus struct {
	Stream  string  `json:"stream"`
	Fresh   bool    `json:"fresh"`
	Paused  bool    `json:"paused"`
	Updated bool    `json:"updated"` // 上次上报之后是否收到过新的 RTP 样本
	Metrics Metrics `json:"metrics"`
}
