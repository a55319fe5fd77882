// Package main runs the recording pipeline HTTP server: webhook ingest, the
// management API and the live status WebSocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meetscribe/backend/config"
	"github.com/meetscribe/backend/internal/clients"
	"github.com/meetscribe/backend/internal/dashboard"
	"github.com/meetscribe/backend/internal/meetings"
	"github.com/meetscribe/backend/internal/middleware"
	"github.com/meetscribe/backend/internal/openai"
	"github.com/meetscribe/backend/internal/realtime"
	"github.com/meetscribe/backend/internal/summarize"
	"github.com/meetscribe/backend/pkg/database"
	"github.com/meetscribe/backend/pkg/queue"
	"github.com/meetscribe/backend/pkg/redis"
	"github.com/meetscribe/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Live status stream. The server subscribes; workers publish.
	statusPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, statusPubSub, statusPubSub)
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	if err := hub.Start(hubCtx); err != nil {
		logger.Fatal("status subscription", zap.Error(err))
	}

	// Recordings
	meetingRepo := meetings.NewRepository(pool)
	validator := meetings.NewSignatureValidator(cfg.Zoom.WebhookSecretToken)
	webhookHandler := meetings.NewWebhookHandler(meetingRepo, jobQueue, validator, logger)
	meetingHandler := meetings.NewHandler(meetingRepo, jobQueue, logger)

	// Clients. The refresh endpoint regenerates the cumulative summary, so
	// the server needs the text generator too.
	openaiClient := openai.NewClient(openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		WhisperModel: cfg.OpenAI.WhisperModel,
		GPTModel:     cfg.OpenAI.GPTModel,
	}, logger)
	summarizer := summarize.NewService(openaiClient, summarize.LoadPrompts(cfg.Processing.PromptsDir, logger), logger)
	clientRepo := clients.NewRepository(pool)
	rollup := clients.NewRollup(clientRepo, meetingRepo, summarizer, logger)
	clientHandler := clients.NewHandler(clientRepo, rollup, logger)

	dashboardHandler := dashboard.NewHandler(meetingRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Webhook (no auth; signature verified in the handler)
	router.POST("/webhook/zoom", webhookHandler.Handle)

	// Management API
	api := router.Group("/api")
	api.Use(middleware.BasicAuth(cfg.Dashboard.Username, cfg.Dashboard.PasswordHash))
	{
		api.GET("/recordings", meetingHandler.List)
		api.GET("/recordings/search", meetingHandler.Search)
		api.GET("/recordings/:id", meetingHandler.Get)
		api.GET("/recordings/:id/transcript", meetingHandler.Transcript)
		api.POST("/recordings/:id/retry", meetingHandler.Retry)
		api.DELETE("/recordings/:id", meetingHandler.Delete)

		api.GET("/clients", clientHandler.List)
		api.POST("/clients", clientHandler.Create)
		api.GET("/clients/:id", clientHandler.Get)
		api.PATCH("/clients/:id", clientHandler.Update)
		api.DELETE("/clients/:id", clientHandler.Delete)
		api.POST("/clients/:id/refresh-summary", clientHandler.RefreshSummary)

		api.GET("/dashboard/stats", dashboardHandler.Stats)
		api.GET("/dashboard/processing", dashboardHandler.Processing)
		api.GET("/dashboard/recent", dashboardHandler.Recent)
		api.GET("/dashboard/action-items", dashboardHandler.ActionItems)
	}

	// Status stream (no auth header on WebSocket upgrades; sits behind the
	// same proxy as the dashboard)
	router.GET("/ws", realtime.ServeWs(hub, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	hubCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
