package analyzer

import (
	"fmt"
	"time"

	"streamqos/internal/agent/packet"
)

// Config 是单个分析器的参数。
type Config struct {
	// Capacity 是三个环形缓冲区的容量（RTP 时间戳、到达时间、序列号）。
	Capacity int `mapstructure:"capacity"`
	// UpdateInterval 是指标重算周期，新鲜度判断为 2 倍周期。
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	// LockTimeout 是获取状态锁的最长等待时间，超时后降级处理而不是阻塞。
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// MaxPacketSize 以上的输入会被截断。
	MaxPacketSize int `mapstructure:"max_packet_size"`
	// BitrateWindow 是两次码率计算之间的最短间隔。
	BitrateWindow time.Duration `mapstructure:"bitrate_window"`
	// latency = JitterWeight*jitter + DelayWeight*delay
	JitterWeight float64 `mapstructure:"jitter_weight"`
	DelayWeight  float64 `mapstructure:"delay_weight"`
}

func DefaultConfig() Config {
	return Config{
		Capacity:       50,
		UpdateInterval: time.Second,
		LockTimeout:    100 * time.Millisecond,
		MaxPacketSize:  packet.DefaultMaxSize,
		BitrateWindow:  time.Second,
		JitterWeight:   0.6,
		DelayWeight:    0.4,
	}
}

// Validate 检查配置；配置错误是唯一应该阻止启动的错误。
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("analyzer.capacity 必须大于 0：%d", c.Capacity)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("analyzer.update_interval 必须大于 0：%s", c.UpdateInterval)
	}
	if c.LockTimeout < 0 {
		return fmt.Errorf("analyzer.lock_timeout 不能为负：%s", c.LockTimeout)
	}
	if c.MaxPacketSize < packet.MinIPv4HeaderLen {
		return fmt.Errorf("analyzer.max_packet_size 过小：%d", c.MaxPacketSize)
	}
	if c.BitrateWindow <= 0 {
		return fmt.Errorf("analyzer.bitrate_window 必须大于 0：%s", c.BitrateWindow)
	}
	if c.JitterWeight < 0 || c.DelayWeight < 0 {
		return fmt.Errorf("latency 权重不能为负：jitter=%v delay=%v", c.JitterWeight, c.DelayWeight)
	}
	return nil
}
