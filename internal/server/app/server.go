package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"streamqos/internal/server/api"
	"streamqos/internal/server/storage"
	"streamqos/internal/server/storage/duckdb"
	"streamqos/internal/server/storage/sqlite"
)

type Server struct {
	httpServer *http.Server
	store      storage.Store
}

func openStore(cfg Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case "", "duckdb":
		if cfg.DBPath == "" {
			cfg.DBPath = "./qos.duckdb"
		}
		return duckdb.NewStore(cfg.DBPath)
	case "sqlite":
		return sqlite.NewStore(cfg.DBPath)
	default:
		return nil, fmt.Errorf("不支持的数据库类型：%s", cfg.DBDriver)
	}
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	return &Server{
		store: store,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           NewRouter(store),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func NewRouter(store storage.Store) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := api.NewHandlers(store)
	v1 := router.Group("/api/v1")
	{
		v1.POST("/upload", h.Upload)
		v1.GET("/query", h.Query)
	}
	return router
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	_ = s.httpServer.Shutdown(ctx)
	return s.store.Close()
}
