package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"streamqos/pkg/model"
)

func TestClient_Upload(t *testing.T) {
	// Mock Server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/upload" {
			t.Errorf("Expected path /api/v1/upload, got %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			t.Errorf("Expected method POST, got %s", r.Method)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var sample model.Sample
		if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
			t.Errorf("Invalid JSON: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if sample.Stream != "10.0.0.1:16400->10.0.0.2:16402" {
			t.Errorf("Expected stream, got %q", sample.Stream)
		}
		if sample.Jitter != 3.5 {
			t.Errorf("Expected jitter 3.5, got %v", sample.Jitter)
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/", time.Second)

	sample := &model.Sample{
		Agent:  "cam-gw-1",
		Stream: "10.0.0.1:16400->10.0.0.2:16402",
		Jitter: 3.5,
	}

	if err := c.Upload(context.Background(), sample); err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
}

func TestClient_UploadServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(server.URL, time.Second)
	if err := c.Upload(context.Background(), &model.Sample{}); err == nil {
		t.Fatal("Expected error for 400 response")
	}
}

type staticSource struct {
	rows    []model.StreamStatus
	cleared []string
}

func (s *staticSource) Snapshots() []model.StreamStatus { return s.rows }
func (s *staticSource) ClearNewData(stream string) {
	s.cleared = append(s.cleared, stream)
	for i := range s.rows {
		if s.rows[i].Stream == stream {
			s.rows[i].Updated = false
		}
	}
}

type recordingUploader struct {
	samples []model.Sample
	fail    string
}

func (u *recordingUploader) Upload(ctx context.Context, s *model.Sample) error {
	if s.Stream == u.fail {
		return errors.New("boom")
	}
	u.samples = append(u.samples, *s)
	return nil
}

func TestReporter_ReportOnce(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	src := &staticSource{rows: []model.StreamStatus{
		{Stream: "a", Fresh: true, Updated: true, Metrics: model.Metrics{Jitter: 1, Timestamp: at}},
		{Stream: "b", Updated: true, Metrics: model.Metrics{}},
		{Stream: "c", Fresh: false, Updated: true, Metrics: model.Metrics{Delay: 9, Timestamp: at}},
		{Stream: "d", Updated: true, Metrics: model.Metrics{Timestamp: at}},
		{Stream: "e", Fresh: true, Metrics: model.Metrics{Timestamp: at}},
	}}
	up := &recordingUploader{fail: "d"}
	r := &Reporter{
		Agent:    "edge-1",
		Source:   src,
		Uploader: up,
		Now:      func() time.Time { return at.Add(time.Second) },
	}

	sent, failed := r.ReportOnce(context.Background())
	if sent != 2 || failed != 1 {
		t.Fatalf("sent=%d failed=%d", sent, failed)
	}
	if up.samples[0].Stream != "a" || up.samples[1].Stream != "c" {
		t.Fatalf("samples=%v", up.samples)
	}
	if up.samples[0].Agent != "edge-1" || !up.samples[0].Timestamp.Equal(at.Add(time.Second)) {
		t.Errorf("sample=%+v", up.samples[0])
	}
	if up.samples[1].Fresh || up.samples[1].Delay != 9 {
		t.Errorf("sample=%+v", up.samples[1])
	}
	// 上报成功的流清除标记，失败的 d 保留到下一轮重试
	if len(src.cleared) != 2 || src.cleared[0] != "a" || src.cleared[1] != "c" {
		t.Fatalf("cleared=%v", src.cleared)
	}

	up.fail = ""
	sent, failed = r.ReportOnce(context.Background())
	if sent != 1 || failed != 0 {
		t.Fatalf("second round sent=%d failed=%d", sent, failed)
	}
	if last := up.samples[len(up.samples)-1]; last.Stream != "d" {
		t.Fatalf("second round sample=%+v", last)
	}
}

func TestReporter_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reporter{Interval: time.Millisecond, Source: &staticSource{}, Uploader: &recordingUploader{}}
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
