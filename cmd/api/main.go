package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taskflow/internal/config"
	"taskflow/internal/dto"
	"taskflow/internal/handler"
	"taskflow/internal/httpserver"
	"taskflow/internal/repository"
	"taskflow/internal/service/ai"
	"taskflow/internal/service/auth"
	"taskflow/internal/service/client"
	"taskflow/internal/service/dashboard"
	"taskflow/internal/service/project"
	"taskflow/internal/service/result"
	"taskflow/internal/service/task"
	"taskflow/internal/service/user"
	"taskflow/pkg/db"
	"taskflow/pkg/logger"
	"taskflow/pkg/mq"
	"taskflow/pkg/otel"
	"taskflow/pkg/outbox"
	"taskflow/pkg/redis"
	"taskflow/pkg/util"
)

func main() {
	cfg, err := config.Load("", os.Getenv("CONFIG_DIR"))
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	log.Info("Starting taskflow api", zap.String("env", cfg.Env), zap.String("port", cfg.Server.Port))

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "taskflow-api",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.Otel.Endpoint,
		Enabled:        cfg.Otel.Enabled,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownOtel()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB initialization failed", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis (登录失败计数)
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	// MQ Publisher (outbox 投递)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	// Repositories
	outboxRepo := outbox.NewRepository(dbConn)
	userRepo := repository.NewUserRepository(dbConn, outboxRepo, log)
	clientRepo := repository.NewClientRepository(dbConn, log)
	projectRepo := repository.NewProjectRepository(dbConn, log)
	taskRepo := repository.NewTaskRepository(dbConn, outboxRepo, log)
	activityRepo := repository.NewActivityRepository(dbConn, log)
	aiResultRepo := repository.NewAiResultRepository(dbConn, log)

	// Services
	var google auth.GoogleProvider
	if gc := auth.NewGoogleClient(cfg.Google); gc != nil {
		google = gc
	} else {
		log.Warn("Google OAuth not configured")
	}
	loginThrottle := util.NewRetryCounter(rdb, auth.LoginThrottleWindow)
	authService := auth.NewService(userRepo, loginThrottle, google, cfg.JWT, cfg.Server.FrontendURL, log)
	userService := user.NewService(userRepo, log)
	clientService := client.NewService(clientRepo, log)
	projectService := project.NewService(projectRepo, clientRepo, activityRepo, log)
	taskService := task.NewService(taskRepo, projectRepo, userRepo, activityRepo, log)
	dashboardService := dashboard.NewService(activityRepo, taskRepo)
	resultService := result.NewService(aiResultRepo, log)
	aiService := ai.NewService(ai.NewClient(cfg.AI, log), resultService, log)
	replayService := outbox.NewReplayService(outboxRepo, publisher, log)

	// Handlers
	dto.RegisterValidator()
	handlers := httpserver.Handlers{
		Auth:      handler.NewAuthHandler(authService, log),
		User:      handler.NewUserHandler(userService),
		Client:    handler.NewClientHandler(clientService),
		Project:   handler.NewProjectHandler(projectService),
		Task:      handler.NewTaskHandler(taskService),
		Dashboard: handler.NewDashboardHandler(dashboardService),
		Result:    handler.NewResultHandler(resultService),
		AI:        handler.NewAIHandler(aiService),
		Admin:     handler.NewAdminHandler(replayService, log),
	}

	router := httpserver.NewRouter(handlers, httpserver.Options{
		Tokens:      authService,
		DB:          dbConn,
		CORSOrigins: cfg.Server.CORSOrigins,
		AILimiter:   httpserver.NewUserRateLimiter(cfg.AI.RatePerSecond, cfg.AI.Burst),
		Logger:      log,
	})

	// Outbox Dispatcher
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)
	go dispatcher.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down taskflow api gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		log.Info("HTTP server stopped")
	}
}
