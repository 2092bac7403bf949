package handler

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
	"feed-translator/internal/service"
)

type Handler struct {
	feeds    *service.FeedManager
	engines  *service.EngineService
	status   *service.StatusService
	files    *service.FilePublisher
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

func NewHandler(feeds *service.FeedManager, engines *service.EngineService, status *service.StatusService,
	files *service.FilePublisher, gatherer prometheus.Gatherer, logger *zap.Logger) *Handler {
	return &Handler{
		feeds:    feeds,
		engines:  engines,
		status:   status,
		files:    files,
		gatherer: gatherer,
		logger:   logger.Named("http"),
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// 输出文件
	r.GET("/rss/:slug", h.ServeFeed)
	r.GET("/json/:slug", h.RenderFeed(service.FormatJSON, "application/feed+json; charset=utf-8"))
	r.GET("/proxy/:slug", h.RenderFeed(service.FormatOriginal, "application/atom+xml; charset=utf-8"))

	if h.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}

	// API
	api := r.Group("/api")
	{
		// Feeds
		api.GET("/feeds", h.ListFeeds)
		api.POST("/feeds", h.CreateFeed)
		api.GET("/feeds/:slug", h.GetFeed)
		api.DELETE("/feeds/:slug", h.DeleteFeed)
		api.POST("/feeds/:slug/sync", h.SyncFeed)
		api.POST("/feeds/:slug/reset", h.ResetFeed)

		// Engines
		api.GET("/engines", h.ListEngines)
		api.POST("/engines", h.CreateEngine)
		api.POST("/engines/:id/validate", h.ValidateEngine)

		// Status
		api.GET("/status", h.GetStatus)
	}
}

// fail 按错误类型选择状态码
func (h *Handler) fail(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrFeedBusy):
		code = http.StatusConflict
	case errors.Is(err, apperr.ErrConfiguration), errors.Is(err, apperr.ErrUnsupportedLanguage):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

// ===== Feed相关 =====

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.feeds.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feeds)
}

func (h *Handler) CreateFeed(c *gin.Context) {
	var feed model.Feed
	if err := c.ShouldBindJSON(&feed); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.feeds.Create(c.Request.Context(), &feed); err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, feed)
}

func (h *Handler) GetFeed(c *gin.Context) {
	feed, err := h.feeds.Get(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handler) DeleteFeed(c *gin.Context) {
	if err := h.feeds.Delete(c.Request.Context(), c.Param("slug")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (h *Handler) SyncFeed(c *gin.Context) {
	report, err := h.feeds.Sync(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) ResetFeed(c *gin.Context) {
	feed, err := h.feeds.Reset(c.Request.Context(), c.Param("slug"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// ServeFeed 只读地返回已发布的文件
func (h *Handler) ServeFeed(c *gin.Context) {
	if h.files == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}
	path := h.files.Path(c.Param("slug"))
	if _, err := os.Stat(path); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
		return
	}
	c.Header("Content-Type", "application/atom+xml; charset=utf-8")
	c.File(path)
}

// RenderFeed 按请求从库中生成 JSON Feed 或原文 Atom
func (h *Handler) RenderFeed(format service.FeedFormat, contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := h.feeds.Render(c.Request.Context(), c.Param("slug"), format)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Data(http.StatusOK, contentType, data)
	}
}

// ===== Engine相关 =====

type engineRequest struct {
	Name     string         `json:"name" binding:"required"`
	Kind     string         `json:"kind" binding:"required"`
	Settings map[string]any `json:"settings"`
}

func (h *Handler) ListEngines(c *gin.Context) {
	engines, err := h.engines.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, engines)
}

func (h *Handler) CreateEngine(c *gin.Context) {
	var req engineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg := &model.EngineConfig{Name: req.Name, Kind: req.Kind}
	if err := cfg.Encode(req.Settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engines.Create(c.Request.Context(), cfg); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) ValidateEngine(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid engine id"})
		return
	}

	valid, err := h.engines.ValidateByID(c.Request.Context(), uint(id))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": valid})
}

// ===== Status相关 =====

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.status.GetSystemStatus(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
