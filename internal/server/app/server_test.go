package app

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"streamqos/internal/server/storage/sqlite"
)

func TestUploadThenQuerySQLite(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "qos.sqlite"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()
	r := NewRouter(store)

	body := `{"timestamp":"2024-05-01T12:00:00Z","agent":"edge-1","stream":"cam-1","jitter":3,"delay":40}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("upload status=%d body=%s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/query?stream=cam-1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("query status=%d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"agent":"edge-1"`) {
		t.Fatalf("body=%s", w.Body.String())
	}
}

func TestNewServerUnknownDriver(t *testing.T) {
	if _, err := NewServer(Config{DBDriver: "mysql"}); err == nil {
		t.Fatal("Expected error for unknown driver")
	}
}
