package api

import (
	"errors"
	"time"

	"gomitas-bot/internal/api/handlers"
	"gomitas-bot/internal/api/handlers/health"
	"gomitas-bot/internal/api/handlers/orders"
	"gomitas-bot/internal/api/handlers/stream"
	"gomitas-bot/internal/api/middleware"
	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/infrastructure/config"
	"gomitas-bot/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// 超時設置
	timeoutDuration = 30 * time.Second
	// 請求體大小限制 (1MB)
	maxBodySize = 1 << 20
	// SSE 心跳間隔
	heartbeatInterval = 25 * time.Second
	// 立即促銷的最短文字長度
	minPromoLength = 3
)

// EventSource 看板事件來源
type EventSource interface {
	stream.Subscriber
	health.StatsProvider
}

// Deps 路由所需的服務
type Deps struct {
	Config   *config.Config
	Menu     *menu.Provider
	Orders   orders.Service
	Engine   handlers.Responder
	Outbox   handlers.Outbound
	Handoff  handlers.HandoffChecker
	Promoter handlers.Promoter
	Events   EventSource
	Health   []health.Option
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("config is required")
	case d.Menu == nil:
		return errors.New("menu provider is required")
	case d.Orders == nil:
		return errors.New("order service is required")
	case d.Engine == nil:
		return errors.New("bot engine is required")
	case d.Promoter == nil:
		return errors.New("promoter is required")
	case d.Events == nil:
		return errors.New("event source is required")
	}
	return nil
}

// SetupRouter 設置路由；回傳的 cleanup 停止中間件的背景協程
func SetupRouter(deps Deps) (*gin.Engine, func(), error) {
	if err := deps.validate(); err != nil {
		return nil, nil, err
	}
	cfg := deps.Config

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New())
	router.Use(middleware.Logger())

	// CORS 設置：看板與網頁下單表單
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.Use(middleware.BodySizeLimit(maxBodySize))

	dedup := middleware.NewDeduplicator(cfg.DedupWindow)
	timeout := middleware.Timeout(timeoutDuration)

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg.App.Version, append([]health.Option{health.WithEvents(deps.Events)}, deps.Health...)...)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)

	orderHandler := orders.NewHandler(deps.Orders)
	chatHandler := handlers.NewChatHandler(deps.Engine, deps.Outbox, deps.Handoff)
	sendPromotion := handlers.HandleSendPromotion(deps.Promoter, minPromoLength)

	// 長連線，不套用逾時
	router.GET("/api/events", stream.HandleEvents(deps.Events, heartbeatInterval))

	api := router.Group("/api", timeout)
	{
		api.GET("/menu", handlers.HandleMenu(deps.Menu))
		api.GET("/orders", orderHandler.HandleList)
		api.POST("/orders", dedup.Middleware(), orderHandler.HandleCreate)
		api.POST("/orders/:id/status", orderHandler.HandleUpdateStatus)
		api.DELETE("/orders/:id", orderHandler.HandleDelete)
		api.POST("/promotions/send-now", dedup.Middleware(), sendPromotion)
	}

	webhooks := router.Group("/webhook", timeout)
	if cfg.RateLimit.Enabled {
		webhooks.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)))
	}
	{
		webhooks.POST("/order", dedup.Middleware(), orderHandler.HandleWebhookCreate)
		webhooks.POST("/promo", handlers.HandleSendPromotion(deps.Promoter, 1))
		webhooks.POST("/chat", chatHandler.HandleWebhook)
	}

	common.LogInfo("Router setup completed successfully",
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		zap.Duration("dedup_window", cfg.DedupWindow),
		zap.Duration("timeout", timeoutDuration),
		zap.Int64("max_body_size", maxBodySize),
	)

	return router, dedup.Stop, nil
}
