package main

import (
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"streamqos/internal/client/app"
)

func main() {
	var cfg app.Config
	flag.StringVar(&cfg.Server, "server", "http://127.0.0.1:8080", "Server 地址")
	flag.StringVar(&cfg.Stream, "stream", "", "按流查询，例如 192.168.1.64:16400->192.168.1.10:16402")
	flag.StringVar(&cfg.Agent, "agent", "", "按 agent 查询")
	flag.IntVar(&cfg.Limit, "limit", 0, "最多返回的行数")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "请求超时")
	flag.Parse()

	if cfg.Stream != "" && cfg.Agent != "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := app.Run(cfg); err != nil {
		logrus.WithError(err).Error("client 失败")
		os.Exit(1)
	}
}
