package model

import (
	"fmt"
	"math"
)

// Grade 是视频流质量等级。
type Grade int

const (
	GradeExcellent Grade = iota
	GradeGood
	GradeFair
	GradePoor
)

func (g Grade) String() string {
	switch g {
	case GradeExcellent:
		return "Excellent"
	case GradeGood:
		return "Good"
	case GradeFair:
		return "Fair"
	case GradePoor:
		return "Poor"
	default:
		return fmt.Sprintf("Unknown(%d)", int(g))
	}
}

// Thresholds 是各项指标的告警阈值。
type Thresholds struct {
	JitterMS      float64
	DelayMS       float64
	LatencyMS     float64
	PacketLossPct float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		JitterMS:      50,
		DelayMS:       200,
		LatencyMS:     100,
		PacketLossPct: 1,
	}
}

// 评分权重，合计为 1。
const (
	weightJitter  = 0.30
	weightDelay   = 0.20
	weightLatency = 0.20
	weightBitrate = 0.15
	weightLoss    = 0.15
)

// Assessment 是一次质量评估的结果。
type Assessment struct {
	Score  float64  `json:"score"` // 0-100
	Grade  Grade    `json:"grade"`
	Issues []string `json:"issues,omitempty"`
}

// Assess 按阈值给快照打分。越小越好的指标在阈值处得 50 分，两倍阈值及以上得 0 分；
// 码率按每 Mbps 10 分计，封顶 100。
func Assess(m Metrics, th Thresholds) Assessment {
	score := weightJitter*lowerIsBetter(m.Jitter, th.JitterMS) +
		weightDelay*lowerIsBetter(m.Delay, th.DelayMS) +
		weightLatency*lowerIsBetter(m.Latency, th.LatencyMS) +
		weightBitrate*math.Min(100, math.Max(0, m.Bitrate*10)) +
		weightLoss*lowerIsBetter(m.PacketLoss, th.PacketLossPct)

	var issues []string
	if m.Jitter > th.JitterMS {
		issues = append(issues, fmt.Sprintf("jitter %.1fms > %.0fms", m.Jitter, th.JitterMS))
	}
	if m.Delay > th.DelayMS {
		issues = append(issues, fmt.Sprintf("delay %.1fms > %.0fms", m.Delay, th.DelayMS))
	}
	if m.Latency > th.LatencyMS {
		issues = append(issues, fmt.Sprintf("latency %.1fms > %.0fms", m.Latency, th.LatencyMS))
	}
	if m.PacketLoss > th.PacketLossPct {
		issues = append(issues, fmt.Sprintf("loss %.2f%% > %.2f%%", m.PacketLoss, th.PacketLossPct))
	}

	return Assessment{Score: score, Grade: gradeOf(score), Issues: issues}
}

func lowerIsBetter(v, threshold float64) float64 {
	if threshold <= 0 {
		return 100
	}
	s := 100 * (1 - v/(2*threshold))
	return math.Min(100, math.Max(0, s))
}

func gradeOf(score float64) Grade {
	switch {
	case score >= 90:
		return GradeExcellent
	case score >= 75:
		return GradeGood
	case score >= 50:
		return GradeFair
	default:
		return GradePoor
	}
}
