package export

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"streamqos/internal/agent/streams"
	"streamqos/pkg/model"
)

// Source 是导出层需要的流表能力，由 streams.Registry 实现。
type Source interface {
	Snapshots() []model.StreamStatus
	Stats() streams.Stats
	Reset() error
	SetEnabled(stream string, on bool) bool
}

var _ Source = (*streams.Registry)(nil)

type Handlers struct {
	src Source
}

func NewHandlers(src Source) *Handlers {
	return &Handlers{src: src}
}

func (h *Handlers) Streams(c *gin.Context) {
	c.JSON(http.StatusOK, h.src.Snapshots())
}

func (h *Handlers) Stream(c *gin.Context) {
	name := c.Param("stream")
	for _, st := range h.src.Snapshots() {
		if st.Stream == name {
			c.JSON(http.StatusOK, st)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "未找到该流：" + name})
}

// Pause 暂停单条流的分析，已有指标保留。
func (h *Handlers) Pause(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handlers) Resume(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *Handlers) setEnabled(c *gin.Context, on bool) {
	name := c.Param("stream")
	if !h.src.SetEnabled(name, on) {
		c.JSON(http.StatusNotFound, gin.H{"error": "未找到该流：" + name})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.src.Stats())
}

func (h *Handlers) Reset(c *gin.Context) {
	if err := h.src.Reset(); err != nil {
		// 部分流锁超时，其余已经清零
		logrus.WithError(err).Warn("重置指标未完全成功")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "重置失败：" + err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// Healthz 只要有一条流的指标是新鲜的就返回 200。
func (h *Handlers) Healthz(c *gin.Context) {
	fresh := false
	for _, st := range h.src.Snapshots() {
		if st.Fresh {
			fresh = true
			break
		}
	}
	code := http.StatusOK
	if !fresh {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"fresh": fresh})
}
