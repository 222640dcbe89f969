package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"streamqos/internal/agent/app"
)

func main() {
	fs := pflag.NewFlagSet("agent", pflag.ContinueOnError)
	app.RegisterFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := app.Load(fs)
	if err != nil {
		logrus.WithError(err).Error("加载配置失败")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		logrus.WithError(err).Error("agent 退出")
		os.Exit(1)
	}

	fmt.Println("agent 正常退出")
}
