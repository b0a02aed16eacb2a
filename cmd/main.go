package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chirp/internal/app/notifier"
	"chirp/internal/app/registry"
	"chirp/internal/app/server"
	"chirp/internal/config"
	"chirp/internal/core/services"
	"chirp/internal/platform/logger"
	"chirp/internal/platform/telemetry"
	"chirp/internal/plugins/postgres"
	"chirp/internal/plugins/push"
	redisPlugin "chirp/internal/plugins/redis"
	"chirp/internal/plugins/twilio"

	"github.com/redis/go-redis/v9"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var pdb *sql.DB
	if pdb, err = postgres.New(ctx, *cfg.Postgres); err != nil {
		log.Error("postgres connection failed", "DSN", cfg.Postgres.DSN)
		return
	}
	log.Info("postgres connected")
	var rdb *redis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	log.Info("redis connected")

	// Adapters
	userRepo := postgres.NewUserRepository(pdb)
	convRepo := postgres.NewConversationRepo(pdb)
	msgRepo := postgres.NewMessageRepo(pdb)
	txManager := postgres.NewTxManager(pdb)
	presStore := redisPlugin.NewRedisPresenceStore(rdb, cfg.Presence.MirrorTTL)
	notifyQueue := redisPlugin.NewRedisNotificationQueue(rdb, log)

	tw := twilio.NewTwilioClient(*cfg.Twilio)
	pushDispatcher := push.NewDispatcher(*cfg.Push, userRepo, log)

	// Core Services
	hub := registry.NewRegistry(log)
	userSvc := services.NewUserService(log, userRepo, tw, hub)
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	presenceSvc := services.NewPresenceService(log, hub, presStore)
	cursorSvc := services.NewCursorService(log, convRepo, msgRepo, hub, txManager)
	callSvc := services.NewCallService(log, hub, userRepo, notifyQueue, cfg.Call.RingTimeout)
	messageSvc := services.NewMessageService(log, userRepo, convRepo, msgRepo, hub, notifyQueue, txManager)

	// Transition hooks. Call teardown runs before the offline announcement
	// so the peer sees the call end before the presence flip.
	hub.OnOnline(presenceSvc.HandleOnline)
	hub.OnOffline(callSvc.HandleOffline)
	hub.OnOffline(presenceSvc.HandleOffline)

	// Notification worker
	wrkr := notifier.NewNotifier(log, notifyQueue, pushDispatcher, cfg.Notifier.Group)
	if err := wrkr.Run(ctx); err != nil {
		log.Error("notifier start failed", "err", err)
		return
	}

	// Server
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Add,
		userSvc, tokenSvc, presenceSvc, cursorSvc, callSvc, messageSvc, hub)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
