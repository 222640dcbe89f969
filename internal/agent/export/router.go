package export

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter 组装本地查询接口与 /metrics。
// 每个 router 使用独立的 prometheus.Registry，避免测试或多实例时重复注册。
func NewRouter(src Source) (*gin.Engine, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(NewCollector(src)); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())

	h := NewHandlers(src)
	router.GET("/healthz", h.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/streams", h.Streams)
		v1.GET("/streams/:stream", h.Stream)
		v1.POST("/streams/:stream/pause", h.Pause)
		v1.POST("/streams/:stream/resume", h.Resume)
		v1.GET("/stats", h.Stats)
		v1.POST("/reset", h.Reset)
	}
	return router, nil
}
