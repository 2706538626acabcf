package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mqcontracts "taskflow/contracts/mq"
	"taskflow/internal/config"
	"taskflow/internal/jobs"
	"taskflow/internal/mqhandler"
	"taskflow/internal/repository"
	"taskflow/pkg/db"
	"taskflow/pkg/logger"
	"taskflow/pkg/mailer"
	"taskflow/pkg/metrics"
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

	log.Info("Starting taskflow worker...", zap.String("env", cfg.Env))

	shutdownOtel, err := otel.Init(otel.Config{
		ServiceName:    "taskflow-worker",
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

	// Redis
	rdb, err := redis.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal("Redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, cfg.Worker.DedupTTL, log)
	retryCounter := util.NewRetryCounter(rdb, cfg.Worker.RetryCounterTTL)

	// DB
	dbConn, err := db.NewConnection(ctx, cfg.DB, log)
	if err != nil {
		log.Fatal("DB connection failed", zap.Error(err))
	}
	defer dbConn.Close()

	// MQ Publisher (DLQ)
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	sender := mailer.NewSMTPMailer(cfg.SMTP, log)

	// handlers
	resetHandler := mqhandler.NewPasswordResetMailHandler(sender, deduper, retryCounter, publisher, log).
		WithMaxRetries(cfg.Worker.MaxRetries)
	assignedHandler := mqhandler.NewTaskAssignedMailHandler(sender, deduper, retryCounter, publisher, cfg.Server.FrontendURL, log).
		WithMaxRetries(cfg.Worker.MaxRetries)

	consumers := []struct {
		queue      string
		routingKey string
		handle     mq.MessageHandler
	}{
		{mqcontracts.QueuePasswordResetMail, mqcontracts.RoutingKeyPasswordResetRequested, resetHandler.Handle},
		{mqcontracts.QueueTaskAssignedMail, mqcontracts.RoutingKeyTaskAssigned, assignedHandler.Handle},
	}

	var wg sync.WaitGroup
	for _, c := range consumers {
		log.Info("Init consumer", zap.String("queue", c.queue), zap.String("routing_key", c.routingKey))
		consumer, err := mq.NewConsumer(cfg.MQ.URL, c.queue, c.routingKey, cfg.MQ.Prefetch, log)
		if err != nil {
			log.Fatal("Consumer init failed", zap.String("queue", c.queue), zap.Error(err))
		}
		defer consumer.Close()
		consumer.SetHandler(c.handle)

		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			if err := consumer.StartConsuming(ctx); err != nil {
				log.Error("Consumer crashed", zap.String("queue", queue), zap.Error(err))
				stop()
			}
		}(c.queue)
	}

	// 定时清理
	outboxRepo := outbox.NewRepository(dbConn)
	maintenance := jobs.NewMaintenance(repository.NewUserRepository(dbConn, outboxRepo, log), outboxRepo, log)
	if err := maintenance.Register(jobs.Schedule{
		ResetTokenPurge:  cfg.Worker.ResetTokenPurge,
		OutboxPurge:      cfg.Worker.OutboxPurge,
		OutboxRetainDays: cfg.Worker.OutboxRetainDays,
	}); err != nil {
		log.Fatal("Failed to register maintenance jobs", zap.Error(err))
	}
	maintenance.Start()

	// HTTP Server (health checks + metrics)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/readyz", func(c *gin.Context) {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := dbConn.Ping(pingCtx); err != nil || !publisher.IsConnected() {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv := &http.Server{
		Addr:              cfg.Worker.HealthPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("Health server starting", zap.String("addr", cfg.Worker.HealthPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Health server failed", zap.Error(err))
		}
	}()

	log.Info("Worker running")
	<-ctx.Done()

	log.Info("Shutting down worker gracefully...")
	maintenance.Stop()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Health server shutdown error", zap.Error(err))
	}
}
