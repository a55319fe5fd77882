// Package main runs the recording pipeline worker and the retry sweeper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meetscribe/backend/config"
	"github.com/meetscribe/backend/internal/clients"
	"github.com/meetscribe/backend/internal/gcal"
	"github.com/meetscribe/backend/internal/googleauth"
	"github.com/meetscribe/backend/internal/gsheets"
	"github.com/meetscribe/backend/internal/meetings"
	"github.com/meetscribe/backend/internal/notify"
	"github.com/meetscribe/backend/internal/notion"
	"github.com/meetscribe/backend/internal/openai"
	"github.com/meetscribe/backend/internal/pipeline"
	"github.com/meetscribe/backend/internal/realtime"
	"github.com/meetscribe/backend/internal/summarize"
	"github.com/meetscribe/backend/internal/youtube"
	"github.com/meetscribe/backend/internal/zoom"
	"github.com/meetscribe/backend/pkg/database"
	"github.com/meetscribe/backend/pkg/queue"
	"github.com/meetscribe/backend/pkg/redis"
	"github.com/meetscribe/backend/pkg/storage"
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

	meetingRepo := meetings.NewRepository(pool)
	clientRepo := clients.NewRepository(pool)

	// External services
	zoomClient := zoom.NewClient(zoom.Config{
		AccountID:    cfg.Zoom.AccountID,
		ClientID:     cfg.Zoom.ClientID,
		ClientSecret: cfg.Zoom.ClientSecret,
	}, logger)

	openaiClient := openai.NewClient(openai.Config{
		APIKey:       cfg.OpenAI.APIKey,
		WhisperModel: cfg.OpenAI.WhisperModel,
		GPTModel:     cfg.OpenAI.GPTModel,
	}, logger)
	summarizer := summarize.NewService(openaiClient, summarize.LoadPrompts(cfg.Processing.PromptsDir, logger), logger)

	youtubeClient := youtube.NewClient(youtube.Config{
		ClientID:     cfg.YouTube.ClientID,
		ClientSecret: cfg.YouTube.ClientSecret,
		RefreshToken: cfg.YouTube.RefreshToken,
		CategoryID:   cfg.YouTube.CategoryID,
	}, logger)

	googleTokens, err := googleauth.NewTokenSource(
		cfg.Google.ServiceAccountEmail,
		cfg.Google.PrivateKeyFile,
		googleauth.ScopeSpreadsheets,
		googleauth.ScopeCalendar,
	)
	if err != nil {
		logger.Fatal("google service account", zap.Error(err))
	}
	sheets := gsheets.NewClient(cfg.Google.SpreadsheetID, googleTokens, logger)
	calendar := gcal.NewClient(cfg.Google.CalendarID, googleTokens, logger)

	notionClient := notion.NewClient(notion.Config{
		APIKey:      cfg.Notion.APIKey,
		ClientDBID:  cfg.Notion.ClientDBID,
		MeetingDBID: cfg.Notion.MeetingDBID,
	}, logger)

	slack := notify.NewSlack(cfg.Slack.WebhookURL, cfg.Slack.Enabled, logger)

	resolver := clients.NewResolver(clientRepo, summarizer, logger)
	rollup := clients.NewRollup(clientRepo, meetingRepo, summarizer, logger)

	// Workers publish status transitions; API instances subscribe.
	statusPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, statusPubSub, nil)

	deps := pipeline.Deps{
		Store:       meetingRepo,
		ClientPages: clientRepo,
		Downloader:  zoomClient,
		Publisher:   youtubeClient,
		Transcriber: openaiClient,
		Summarizer:  summarizer,
		Resolver:    resolver,
		Rollup:      rollup,
		Docs:        notionClient,
		Ledger:      sheets,
		Calendar:    calendar,
		Notifier:    slack,
		Guard:       jobQueue,
		Events:      hub,
	}

	if cfg.AWS.ArchiveEnabled && cfg.AWS.ArchiveBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.ArchiveBucket,
		}, logger)
		if err != nil {
			logger.Fatal("s3", zap.Error(err))
		}
		deps.Archiver = s3Client
	}

	processor := pipeline.NewProcessor(pipeline.Config{
		DownloadDir:    cfg.Processing.DownloadDir,
		Language:       cfg.Processing.Language,
		AutoDelete:     cfg.Processing.AutoDelete,
		ArchiveEnabled: cfg.AWS.ArchiveEnabled,
	}, deps, logger)

	worker := pipeline.NewWorker(jobQueue, processor, cfg.Processing.WorkerConcurrency, logger)
	sweeper := pipeline.NewSweeper(meetingRepo, jobQueue,
		time.Duration(cfg.Processing.SweepIntervalMin)*time.Minute, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		worker.Run(workerCtx)
		close(done)
	}()
	go sweeper.Run(workerCtx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out waiting for in-flight jobs")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
