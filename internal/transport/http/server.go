// Package apihttp 提供条件/自动订单管理与历史查询的 HTTP 服务。
package apihttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"condor/internal/dispatch"
	"condor/internal/logger"
	"condor/internal/notify"
	"condor/internal/store"
	"condor/internal/store/history"
	"condor/internal/tracker"

	"github.com/gin-gonic/gin"
)

// ServerConfig 描述 HTTP 服务依赖。
type ServerConfig struct {
	Addr       string
	Store      store.Store
	History    *history.Store
	Tracker    *tracker.Tracker
	Dispatcher *dispatch.Dispatcher
	Notifier   *notify.Dispatcher
	Templates  *notify.Registry
	Popup      *notify.PopupChannel
	// ReloadSettings re-reads the config file and applies fresh notification
	// settings; optional.
	ReloadSettings func() error
}

type Server struct {
	addr   string
	router *gin.Engine
}

// NewServer 构建 API server 并挂载全部路由。
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("api http server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9982"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := &Router{
		store:          cfg.Store,
		history:        cfg.History,
		tracker:        cfg.Tracker,
		dispatcher:     cfg.Dispatcher,
		notifier:       cfg.Notifier,
		templates:      cfg.Templates,
		popup:          cfg.Popup,
		reloadSettings: cfg.ReloadSettings,
	}
	r.Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger 记录接口调用，便于追踪人工操作。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			method, path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler exposes the underlying router for httptest-based tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
