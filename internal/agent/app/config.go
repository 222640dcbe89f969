package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"streamqos/internal/agent/analyzer"
	"streamqos/internal/agent/streams"
)

const envPrefix = "STREAMQOS"

type Config struct {
	// Interface 与 PcapFile 二选一；PcapFile 非空时回放文件而不是抓网卡。
	Interface string `mapstructure:"interface"`
	PcapFile  string `mapstructure:"pcap_file"`
	Realtime  bool   `mapstructure:"realtime"`
	Snaplen   int    `mapstructure:"snaplen"`
	PortMin   uint16 `mapstructure:"port_min"`
	PortMax   uint16 `mapstructure:"port_max"`

	// ServerURL 为空时不上报，只提供本地接口。
	ServerURL      string        `mapstructure:"server_url"`
	AgentName      string        `mapstructure:"agent_name"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	UploadTimeout  time.Duration `mapstructure:"upload_timeout"`

	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`

	MaxStreams  int    `mapstructure:"max_streams"`
	HeapLimitMB uint64 `mapstructure:"heap_limit_mb"`

	Analyzer analyzer.Config `mapstructure:"analyzer"`
}

func setDefaults(v *viper.Viper) {
	d := analyzer.DefaultConfig()
	v.SetDefault("interface", "eth0")
	v.SetDefault("pcap_file", "")
	v.SetDefault("realtime", false)
	v.SetDefault("snaplen", 65535)
	v.SetDefault("port_min", 16384)
	v.SetDefault("port_max", 32767)
	v.SetDefault("server_url", "")
	v.SetDefault("agent_name", "")
	v.SetDefault("report_interval", "5s")
	v.SetDefault("upload_timeout", "5s")
	v.SetDefault("listen", ":9100")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_streams", streams.DefaultMaxStreams)
	v.SetDefault("heap_limit_mb", 0)
	v.SetDefault("analyzer.capacity", d.Capacity)
	v.SetDefault("analyzer.update_interval", d.UpdateInterval)
	v.SetDefault("analyzer.lock_timeout", d.LockTimeout)
	v.SetDefault("analyzer.max_packet_size", d.MaxPacketSize)
	v.SetDefault("analyzer.bitrate_window", d.BitrateWindow)
	v.SetDefault("analyzer.jitter_weight", d.JitterWeight)
	v.SetDefault("analyzer.delay_weight", d.DelayWeight)
}

// flagKeys 是命令行参数到配置键的映射。
var flagKeys = map[string]string{
	"interface":       "interface",
	"pcap":            "pcap_file",
	"realtime":        "realtime",
	"snaplen":         "snaplen",
	"port-min":        "port_min",
	"port-max":        "port_max",
	"server":          "server_url",
	"agent-name":      "agent_name",
	"report-interval": "report_interval",
	"listen":          "listen",
	"log-level":       "log_level",
	"max-streams":     "max_streams",
	"heap-limit-mb":   "heap_limit_mb",
	"capacity":        "analyzer.capacity",
	"update-interval": "analyzer.update_interval",
	"lock-timeout":    "analyzer.lock_timeout",
}

// RegisterFlags 在 fs 上注册 agent 的命令行参数。默认值只用于 -h 展示，
// 实际默认值以 setDefaults 为准，未显式设置的参数不会覆盖配置文件和环境变量。
func RegisterFlags(fs *pflag.FlagSet) {
	d := analyzer.DefaultConfig()
	fs.String("config", "", "YAML 配置文件路径")
	fs.StringP("interface", "i", "eth0", "抓包网卡名，例如 eth0 / any")
	fs.String("pcap", "", "回放 pcap/pcapng 文件而不是抓网卡")
	fs.Bool("realtime", false, "回放文件时按原始包间隔播放")
	fs.Int("snaplen", 65535, "AF_PACKET 帧大小上限")
	fs.Uint16("port-min", 16384, "RTP 端口范围下限")
	fs.Uint16("port-max", 32767, "RTP 端口范围上限")
	fs.String("server", "", "server 地址，例如 http://10.0.0.5:8080；为空时不上报")
	fs.String("agent-name", "", "上报时使用的 agent 名称，默认主机名")
	fs.Duration("report-interval", 5*time.Second, "上报周期")
	fs.String("listen", ":9100", "本地查询接口与 /metrics 监听地址")
	fs.String("log-level", "info", "日志级别：debug/info/warn/error")
	fs.Int("max-streams", streams.DefaultMaxStreams, "同时跟踪的最大流数量")
	fs.Uint64("heap-limit-mb", 0, "堆内存上限（MB），超过后暂停处理新包；0 表示不限制")
	fs.Int("capacity", d.Capacity, "每条流的样本窗口大小")
	fs.Duration("update-interval", d.UpdateInterval, "指标重算周期")
	fs.Duration("lock-timeout", d.LockTimeout, "状态锁最长等待时间")
}

// Load 按 默认值 → 配置文件 → 环境变量（STREAMQOS_ 前缀）→ 命令行参数 的优先级合并配置。
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("绑定参数 %s 失败：%w", name, err)
				}
			}
		}
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("读取配置文件失败：%w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置失败：%w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Interface == "" && c.PcapFile == "" {
		return errors.New("interface 与 pcap_file 不能同时为空")
	}
	if c.PortMin > c.PortMax {
		return fmt.Errorf("端口范围无效：port_min=%d > port_max=%d", c.PortMin, c.PortMax)
	}
	if c.Snaplen <= 0 {
		return fmt.Errorf("snaplen 必须大于 0：%d", c.Snaplen)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level 非法：%w", err)
	}
	return c.Analyzer.Validate()
}
