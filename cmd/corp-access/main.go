package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"corp-access/internal/bot"
	"corp-access/internal/config"
	"corp-access/internal/database"
	httpapi "corp-access/internal/http"
	"corp-access/internal/logger"
	"corp-access/internal/repository"
	"corp-access/internal/service"
	"corp-access/internal/store"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg := config.Load()

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "corp-access")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 数据库连接
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 4. Redis（会话与FSM状态）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	kv := store.NewRedisKV(redisClient)
	sessions := store.NewSessionStore(kv, cfg.TwoFA.SessionTTL, cfg.TwoFA.StateTTL)

	// 5. 仓库层
	accountsRepo := repository.NewPostgresAccountsRepo(db)
	registryRepo := repository.NewPostgresRegistryRepo(db)
	eventsRepo := repository.NewPostgresEventsRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)

	// 6. 业务服务
	panel := service.NewPanelClient(cfg.Panel, log)
	lockout := service.NewLockoutService(accountsRepo, cfg.Lockout, log)
	registry := service.NewRegistryService(registryRepo, log)
	twofa := service.NewTwoFactorService(sessions, accountsRepo, lockout, auditRepo, log)
	access := service.NewAccessService(accountsRepo, auditRepo, panel, cfg.Panel, log)
	webhooks := service.NewWebhookService(eventsRepo, accountsRepo, auditRepo, lockout, panel, cfg.Webhook, log)

	// 7. 消息机器人
	transport := bot.NewHTTPTransport(cfg.Bot.BridgeURL, log)
	msgBot := bot.New(transport, twofa, registry, access, sessions, cfg.Bot.AdminIDs, log)

	// 8. 健康监控（后台循环）
	monitor := service.NewMonitor(panel, auditRepo, msgBot, cfg.Monitor, log)

	// 9. HTTP 路由
	router := httpapi.NewRouter(log)
	router.RegisterAccessRoutes(httpapi.NewAccessHandler(access, cfg.CorpSecret, log))
	router.RegisterWebhookRoutes(httpapi.NewWebhookHandler(webhooks, cfg.CorpSecret, log))
	router.RegisterRegistryRoutes(httpapi.NewRegistryHandler(registry, cfg.CorpSecret, log))
	router.RegisterBotRoutes(httpapi.NewBotHandler(msgBot, cfg.CorpSecret, log))

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// 优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		log.Error("HTTP server error", zap.Error(err))
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)

	log.Info("corp-access stopped")
}
