// Package server exposes the service over HTTP with gin and handles
// graceful shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/efebarandurmaz/recall/internal/embedding"
	"github.com/efebarandurmaz/recall/internal/index"
	"github.com/efebarandurmaz/recall/internal/service"
	"github.com/efebarandurmaz/recall/internal/store"
)

// Service is the operation set served over HTTP.
type Service interface {
	Search(ctx context.Context, req service.QueryRequest) (*service.QueryResponse, error)
	Reload(ctx context.Context) (*service.ReloadResponse, error)
	Health() service.HealthResponse
	Ready() (service.HealthResponse, bool)
}

// RouterConfig configures NewRouter.
type RouterConfig struct {
	Logger *slog.Logger
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(svc Service, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	rag := r.Group("/rag")
	{
		rag.POST("/query", h.query)
		rag.POST("/reload", h.reload)
	}

	for _, path := range []string{"/health", "/healthz"} {
		r.GET(path, h.health)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		r.GET(path, h.ready)
	}
	for _, path := range []string{"/live", "/livez"} {
		r.GET(path, h.live)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics))
	}
	return r
}

type handlers struct {
	svc    Service
	logger *slog.Logger
}

func (h *handlers) query(c *gin.Context) {
	var req service.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.svc.Search(c.Request.Context(), req)
	if err != nil {
		status := queryStatus(err)
		if status >= 500 {
			h.logger.Error("query failed", "status", status, "error", err)
		}
		abort(c, status, errorDetail("Error processing query", err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) reload(c *gin.Context) {
	resp, err := h.svc.Reload(c.Request.Context())
	if err != nil {
		status := reloadStatus(err)
		h.logger.Error("reload failed", "status", status, "error", err)
		abort(c, status, errorDetail("Error reloading index", err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// health always answers 200 so liveness probes do not restart a pod that is
// still waiting for data; the body carries the real status.
func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health())
}

func (h *handlers) ready(c *gin.Context) {
	resp, ok := h.svc.Ready()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func queryStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, embedding.ErrProvider):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func reloadStatus(err error) int {
	switch {
	case errors.Is(err, index.ErrNoDataYet), errors.Is(err, store.ErrSchemaNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorDetail(prefix string, err error) string {
	if errors.Is(err, service.ErrNotReady) || errors.Is(err, service.ErrInvalidRequest) {
		return err.Error()
	}
	return prefix + ": " + err.Error()
}

func abort(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, service.ErrorResponse{Detail: detail})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= 500 {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
			"client_ip", c.ClientIP(),
		)
	}
}

// NewHTTPServer wraps a handler with the timeouts used in production.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	if addr == "" {
		addr = ":8080"
	}
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
