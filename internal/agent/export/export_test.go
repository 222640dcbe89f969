package export

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamqos/internal/agent/streams"
	"streamqos/pkg/model"
)

const testStream = "192.168.1.64:16400->192.168.1.10:16402"

type fakeSource struct {
	snapshots []model.StreamStatus
	stats     streams.Stats
	resetErr  error
	resets    int
}

func (f *fakeSource) Snapshots() []model.StreamStatus { return f.snapshots }
func (f *fakeSource) Stats() streams.Stats            { return f.stats }
func (f *fakeSource) Reset() error {
	f.resets++
	return f.resetErr
}
func (f *fakeSource) SetEnabled(stream string, on bool) bool {
	for i := range f.snapshots {
		if f.snapshots[i].Stream == stream {
			f.snapshots[i].Paused = !on
			return true
		}
	}
	return false
}

func newTestRouter(t *testing.T, src Source) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r, err := NewRouter(src)
	require.NoError(t, err)
	return r
}

func do(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func sampleSource() *fakeSource {
	return &fakeSource{
		snapshots: []model.StreamStatus{{
			Stream: testStream,
			Fresh:  true,
			Metrics: model.Metrics{
				Jitter:       12.5,
				Delay:        40,
				Latency:      23.5,
				Bitrate:      4.2,
				PacketLoss:   2,
				Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
				TotalPackets: 900,
				LostPackets:  1,
			},
		}},
		stats: streams.Stats{Streams: 1, Other: 7, Malformed: 2},
	}
}

func TestStreamsEndpoint(t *testing.T) {
	r := newTestRouter(t, sampleSource())

	w := do(r, http.MethodGet, "/api/v1/streams")
	require.Equal(t, http.StatusOK, w.Code)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, testStream, rows[0]["stream"])
	assert.Equal(t, true, rows[0]["fresh"])
	metrics := rows[0]["metrics"].(map[string]any)
	for _, key := range []string{"jitter", "delay", "latency", "bitrate", "packetLoss", "timestamp"} {
		assert.Contains(t, metrics, key)
	}
}

func TestStreamEndpoint(t *testing.T) {
	r := newTestRouter(t, sampleSource())

	w := do(r, http.MethodGet, "/api/v1/streams/"+url.PathEscape(testStream))
	require.Equal(t, http.StatusOK, w.Code)
	var st model.StreamStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, 12.5, st.Metrics.Jitter)

	w = do(r, http.MethodGet, "/api/v1/streams/"+url.PathEscape("10.0.0.1:1->10.0.0.2:2"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetEndpoint(t *testing.T) {
	src := sampleSource()
	r := newTestRouter(t, src)

	w := do(r, http.MethodPost, "/api/v1/reset")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, src.resets)

	src.resetErr = errors.New("lock timeout")
	w = do(r, http.MethodPost, "/api/v1/reset")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestPauseResumeEndpoints(t *testing.T) {
	src := sampleSource()
	r := newTestRouter(t, src)
	target := "/api/v1/streams/" + url.PathEscape(testStream)

	w := do(r, http.MethodPost, target+"/pause")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, src.snapshots[0].Paused)

	w = do(r, http.MethodGet, "/metrics")
	assert.Contains(t, w.Body.String(), `streamqos_paused{stream="`+testStream+`"} 1`)

	w = do(r, http.MethodPost, target+"/resume")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, src.snapshots[0].Paused)

	w = do(r, http.MethodPost, "/api/v1/streams/"+url.PathEscape("10.0.0.1:1->10.0.0.2:2")+"/pause")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	src := sampleSource()
	r := newTestRouter(t, src)

	w := do(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"fresh":true}`, w.Body.String())

	src.snapshots[0].Fresh = false
	w = do(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"fresh":false}`, w.Body.String())

	src.snapshots = nil
	w = do(r, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	r := newTestRouter(t, sampleSource())
	w := do(r, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"streams":1,"other":7,"malformed":2,"truncated":0}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, sampleSource())

	w := do(r, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	text := string(body)

	label := `{stream="` + testStream + `"}`
	assert.Contains(t, text, "streamqos_jitter_ms"+label+" 12.5")
	assert.Contains(t, text, "streamqos_delay_ms"+label+" 40")
	assert.Contains(t, text, "streamqos_latency_ms"+label+" 23.5")
	assert.Contains(t, text, "streamqos_bitrate_mbps"+label+" 4.2")
	assert.Contains(t, text, "streamqos_packet_loss_percent"+label+" 2")
	assert.Contains(t, text, "streamqos_fresh"+label+" 1")
	assert.Contains(t, text, "streamqos_packets_total"+label+" 900")
	assert.Contains(t, text, "streamqos_streams 1")
	assert.Contains(t, text, "streamqos_other_packets_total 7")
	assert.Contains(t, text, "go_goroutines")
}

func TestNewRouterIsolatedRegistries(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_, err := NewRouter(sampleSource())
	require.NoError(t, err)
	_, err = NewRouter(sampleSource())
	require.NoError(t, err)
}
