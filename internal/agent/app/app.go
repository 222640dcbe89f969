package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"streamqos/internal/agent/analyzer"
	"streamqos/internal/agent/capture"
	"streamqos/internal/agent/export"
	"streamqos/internal/agent/filter"
	"streamqos/internal/agent/report"
	"streamqos/internal/agent/streams"
)

const heapCheckInterval = time.Second

// Agent 把抓包、流表、本地接口和上报串在一起。
type Agent struct {
	cfg      Config
	registry *streams.Registry
	guard    *analyzer.HeapGuard
	router   *gin.Engine
	reporter *report.Reporter
	log      *logrus.Entry
}

func New(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.AgentName == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "agent"
		}
		cfg.AgentName = host
	}
	a := &Agent{
		cfg: cfg,
		log: logrus.WithField("agent", cfg.AgentName),
	}

	var opts []analyzer.Option
	if cfg.HeapLimitMB > 0 {
		a.guard = analyzer.NewHeapGuard(cfg.HeapLimitMB << 20)
		opts = append(opts, analyzer.WithHealthChecker(a.guard))
	}

	reg, err := streams.New(ctx, cfg.Analyzer, cfg.MaxStreams, opts...)
	if err != nil {
		return nil, err
	}
	a.registry = reg

	if a.router, err = export.NewRouter(reg); err != nil {
		reg.Close()
		return nil, fmt.Errorf("初始化本地接口失败：%w", err)
	}

	if cfg.ServerURL != "" {
		a.reporter = &report.Reporter{
			Agent:    cfg.AgentName,
			Interval: cfg.ReportInterval,
			Source:   reg,
			Uploader: report.NewClient(cfg.ServerURL, cfg.UploadTimeout),
		}
	}
	return a, nil
}

func (a *Agent) Registry() *streams.Registry {
	return a.registry
}

func (a *Agent) Handler() http.Handler {
	return a.router
}

// Serve 运行所有 worker，直到 ctx 结束或某个 worker 出错。src 在返回前关闭。
func (a *Agent) Serve(ctx context.Context, src capture.Source) error {
	defer a.registry.Close()
	defer src.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		st, err := capture.Pump(ctx, src, a.registry)
		a.log.WithFields(logrus.Fields{
			"frames":   st.Frames,
			"nonIPv4":  st.NonIPv4,
			"accepted": st.Accepted,
		}).Info("抓包结束")
		if err != nil {
			return fmt.Errorf("抓包失败：%w", err)
		}
		return nil
	})

	if a.guard != nil {
		g.Go(func() error {
			a.guard.Run(ctx, heapCheckInterval)
			return nil
		})
	}

	if a.reporter != nil {
		g.Go(func() error {
			return a.reporter.Run(ctx)
		})
	}

	srv := &http.Server{
		Addr:              a.cfg.Listen,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.log.WithField("listen", a.cfg.Listen).Info("本地接口已启动")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("本地接口监听失败：%w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// OpenSource 按配置打开抓包文件或网卡。网卡模式下在内核里用 BPF 只放行 RTP 端口范围内的 UDP。
func OpenSource(cfg Config) (capture.Source, error) {
	if cfg.PcapFile != "" {
		f, err := capture.OpenFile(cfg.PcapFile)
		if err != nil {
			return nil, err
		}
		f.Realtime = cfg.Realtime
		return f, nil
	}

	handle, err := capture.NewAFPacketHandle(cfg.Interface, cfg.Snaplen)
	if err != nil {
		return nil, err
	}
	rawIns, err := filter.RTPFilterBPF(cfg.PortMin, cfg.PortMax)
	if err != nil {
		_ = handle.Close()
		return nil, err
	}
	if err := handle.SetBPF(rawIns); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("设置 BPF 失败：%w", err)
	}
	return handle, nil
}

func Run(ctx context.Context, cfg Config) error {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log_level 非法：%w", err)
	}
	logrus.SetLevel(level)

	src, err := OpenSource(cfg)
	if err != nil {
		return err
	}
	a, err := New(ctx, cfg)
	if err != nil {
		_ = src.Close()
		return err
	}

	logrus.WithFields(logrus.Fields{
		"iface":  cfg.Interface,
		"pcap":   cfg.PcapFile,
		"ports":  fmt.Sprintf("%d-%d,%d", cfg.PortMin, cfg.PortMax, filter.RTSPPort),
		"server": cfg.ServerURL,
	}).Info("开始抓包")
	return a.Serve(ctx, src)
}
