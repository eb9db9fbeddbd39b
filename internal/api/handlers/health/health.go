package health

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"gomitas-bot/internal/core/messaging"
	"gomitas-bot/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger 就緒檢查的依賴
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 將函式轉為 Pinger
type PingFunc func(ctx context.Context) error

// Ping 實現 Pinger
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// StatsProvider 提供統計資料的元件
type StatsProvider interface {
	Stats() map[string]interface{}
}

// QueueReporter 外送佇列狀態
type QueueReporter interface {
	Status() *messaging.Status
}

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Queue     *messaging.Status      `json:"queue,omitempty"`
	Sessions  map[string]interface{} `json:"sessions,omitempty"`
	Events    map[string]interface{} `json:"events,omitempty"`
}

// Handler 健康檢查處理器
type Handler struct {
	version  string
	queue    QueueReporter
	sessions StatsProvider
	events   StatsProvider
	checks   map[string]Pinger
	timeout  time.Duration
}

// Option 設定 Handler
type Option func(*Handler)

// WithQueue 回報外送佇列狀態
func WithQueue(q QueueReporter) Option {
	return func(h *Handler) { h.queue = q }
}

// WithSessions 回報對話儲存統計
func WithSessions(s StatsProvider) Option {
	return func(h *Handler) { h.sessions = s }
}

// WithEvents 回報事件推送統計
func WithEvents(s StatsProvider) Option {
	return func(h *Handler) { h.events = s }
}

// WithCheck 加入就緒檢查
func WithCheck(name string, p Pinger) Option {
	return func(h *Handler) { h.checks[name] = p }
}

// NewHandler 創建健康檢查處理器
func NewHandler(version string, opts ...Option) *Handler {
	h := &Handler{
		version: version,
		checks:  make(map[string]Pinger),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck 健康檢查處理器
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
	}
	if h.queue != nil {
		response.Queue = h.queue.Status()
	}
	if h.sessions != nil {
		response.Sessions = h.sessions.Stats()
	}
	if h.events != nil {
		response.Events = h.events.Stats()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 就緒檢查處理器：任一依賴失敗回應 503
func (h *Handler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ready := true
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			ready = false
			results[name] = err.Error()
			common.LogWarn("Readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "checks": results})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
