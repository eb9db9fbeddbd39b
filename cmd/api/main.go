package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gomitas-bot/internal/api"
	"gomitas-bot/internal/api/handlers/health"
	"gomitas-bot/internal/core/bot"
	"gomitas-bot/internal/core/events"
	"gomitas-bot/internal/core/menu"
	"gomitas-bot/internal/core/messaging"
	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/core/scheduler"
	"gomitas-bot/internal/core/session"
	"gomitas-bot/internal/infrastructure/config"
	"gomitas-bot/internal/infrastructure/storage"
	"gomitas-bot/internal/pkg/common"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 載入 .env
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found")
	}

	// 載入設定
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogDir); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.String("session_backend", cfg.Session.Backend),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("messaging_base_url", cfg.Messaging.BaseURL),
		zap.String("messaging_token", config.MaskSecret(cfg.Messaging.Token)),
		zap.Bool("seasonal_enabled", cfg.Shop.SeasonalEnabled),
	)

	// 菜單
	catalog, err := menu.Load(cfg.Shop.MenuFile)
	if err != nil {
		common.LogFatal("Failed to load menu", zap.Error(err))
	}
	provider := menu.NewProvider(catalog, cfg.Shop.SeasonalEnabled)

	// 訂單儲存
	repo, err := storage.NewFileOrderRepository(cfg.Storage.DataDir)
	if err != nil {
		common.LogFatal("Failed to open order storage", zap.Error(err))
	}
	defer repo.Close()

	healthOpts := []health.Option{health.WithCheck("orders", repo)}

	// 對話儲存
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisStore, err := session.NewRedisStore(ctx, &cfg.Redis, cfg.Session.TTL)
		cancel()
		if err != nil {
			common.LogFatal("Failed to connect session store", zap.Error(err))
		}
		store = redisStore
		healthOpts = append(healthOpts, health.WithSessions(redisStore), health.WithCheck("redis", redisStore))
	default:
		memStore := session.NewMemoryStore(cfg.Session.TTL, cfg.Session.CleanupInterval)
		store = memStore
		healthOpts = append(healthOpts, health.WithSessions(memStore))
	}
	defer store.Close()

	// 看板事件
	hub := events.NewHub(32)
	defer hub.Close()

	// 外送訊息
	outbox := messaging.NewOutbox(
		messaging.NewSender(&cfg.Messaging),
		cfg.Messaging.Workers,
		cfg.Messaging.QueueSize,
		cfg.Messaging.Timeout,
	)
	healthOpts = append(healthOpts, health.WithQueue(outbox))
	handoff := messaging.NewHandoff(cfg.Messaging.HandoffWindow)

	orderSvc := order.NewService(repo, hub, outbox, handoff, cfg.Shop.CountryCode)
	engine := bot.NewEngine(provider.Snapshot(), store, orderSvc, cfg.Shop.PublicOrderURL())

	// 排程
	sched := scheduler.New(cfg.Scheduler, repo, orderSvc, outbox)
	if cfg.Scheduler.Enabled {
		if err := sched.Start(); err != nil {
			common.LogFatal("Failed to start scheduler", zap.Error(err))
		}
	}

	// 設置路由
	router, cleanup, err := api.SetupRouter(api.Deps{
		Config:   cfg,
		Menu:     provider,
		Orders:   orderSvc,
		Engine:   engine,
		Outbox:   outbox,
		Handoff:  handoff,
		Promoter: sched,
		Events:   hub,
		Health:   healthOpts,
	})
	if err != nil {
		common.LogError("Failed to setup router", zap.Error(err))
		os.Exit(1)
	}
	defer cleanup()

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Int("port", cfg.Server.Port),
			zap.Bool("debug", cfg.App.Debug),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogFatal("Failed to start server", zap.Error(err))
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// 先關閉看板串流，讓 Shutdown 不必等待長連線
	hub.Close()
	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown", zap.Error(err))
	}

	sched.Stop(ctx)
	outbox.Close()

	common.LogInfo("Server exited")
}
