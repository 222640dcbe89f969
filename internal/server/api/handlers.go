package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"streamqos/internal/server/storage"
	"streamqos/pkg/model"
)

type Handlers struct {
	store storage.Store
}

func NewHandlers(store storage.Store) *Handlers {
	return &Handlers{store: store}
}

func (h *Handlers) Upload(c *gin.Context) {
	var sample model.Sample
	if err := c.ShouldBindJSON(&sample); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "JSON 解析失败：" + err.Error()})
		return
	}

	// 这里做最基本的数据校验，避免脏数据写入数据库。
	if sample.Agent == "" || sample.Stream == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent/stream 不能为空"})
		return
	}
	if sample.Timestamp.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp 不能为空"})
		return
	}
	for _, v := range []float64{sample.Jitter, sample.Delay, sample.Latency, sample.Bitrate, sample.PacketLoss} {
		if !validMetric(v) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "jitter/delay/latency/bitrate/packetLoss 必须是非负数"})
			return
		}
	}
	if sample.PacketLoss > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "packetLoss 不能超过 100"})
		return
	}

	if err := h.store.Insert(c.Request.Context(), &sample); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "写入数据库失败：" + err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// Query 按 stream 或 agent 查询；两者都没有时返回每条流的最新样本。
func (h *Handlers) Query(c *gin.Context) {
	limit := storage.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 2000 {
			limit = v
		}
	}

	var (
		rows []model.Sample
		err  error
	)
	stream, agent := c.Query("stream"), c.Query("agent")
	switch {
	case stream != "" && agent != "":
		c.JSON(http.StatusBadRequest, gin.H{"error": "stream 与 agent 只能指定一个"})
		return
	case stream != "":
		rows, err = h.store.QueryByStream(c.Request.Context(), stream, limit)
	case agent != "":
		rows, err = h.store.QueryByAgent(c.Request.Context(), agent, limit)
	default:
		rows, err = h.store.Latest(c.Request.Context(), limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败：" + err.Error()})
		return
	}

	c.JSON(http.StatusOK, rows)
}

func validMetric(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
