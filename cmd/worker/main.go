package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"contentforge/internal/adapter/repo"
	"contentforge/internal/infra"
	"contentforge/internal/progress"
	"contentforge/internal/providers/genai"
	"contentforge/internal/scheduler"
	"contentforge/internal/storage"
	"contentforge/internal/webhook"
	"contentforge/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	redisClient, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: redis connection failed")
	}
	defer redisClient.Close()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		TextModel:  cfg.GeminiModel,
		ImageModel: cfg.GeminiImgModel,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generation client")
	}

	jobs := repo.NewJobRepository(pool)
	articles := repo.NewArticleRepository(pool)
	settings := repo.NewSettingsRepository(pool)
	broker := progress.NewBroker(redisClient, logger)

	processor := worker.NewProcessor(worker.Options{
		Jobs:           jobs,
		Articles:       articles,
		Provider:       geminiClient,
		Notify:         broker,
		Store:          fileStore,
		Logger:         logger,
		JobTimeout:     cfg.JobTimeout,
		CallTimeout:    cfg.ProviderTimeout,
		StorageBaseURL: cfg.StorageBaseURL,
	})

	publisher := webhook.NewPublisher(cfg.WebhookTimeout, logger)
	checker := scheduler.NewChecker(articles, settings, publisher, logger)
	cronRunner, err := checker.Start(ctx, cfg.ScheduleCheckSpec)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start schedule checker")
	}
	defer cronRunner.Stop()

	wake, unsubscribe := broker.SubscribeCreated(ctx)
	defer unsubscribe()

	logger.Info().Msg("worker: started")
	if err := processor.Run(ctx, wake, cfg.JobPollInterval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
