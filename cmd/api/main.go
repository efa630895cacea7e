package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rafaelq/code-review-back/internal/ai"
	"github.com/rafaelq/code-review-back/internal/cache"
	"github.com/rafaelq/code-review-back/internal/config"
	httpserver "github.com/rafaelq/code-review-back/internal/http"
	"github.com/rafaelq/code-review-back/internal/http/handlers"
	"github.com/rafaelq/code-review-back/internal/policy"
	"github.com/rafaelq/code-review-back/internal/quality"
	"github.com/rafaelq/code-review-back/internal/queue"
	"github.com/rafaelq/code-review-back/internal/repository"
	"github.com/rafaelq/code-review-back/internal/review"
	"github.com/rafaelq/code-review-back/internal/service"
	"github.com/rafaelq/code-review-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[code-review] ", log.LstdFlags|log.Lmsgprefix)

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Printf("dotenv: %v", err)
	}
	cfg := config.Load()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := setupRepository(rootCtx, cfg, logger)
	producer, consumer, closeQueue := setupQueue(rootCtx, cfg, logger)
	defer closeQueue()

	client := setupClient(cfg)
	if !client.Available() {
		logger.Printf("warning: %s credentials missing, reviews will fail until configured", client.Provider())
	}

	engine := review.NewEngine(review.Dependencies{
		Router: ai.NewModelRouter(ai.ModelRouterConfig{
			ReviewPrimary:  cfg.ModelReviewPrimary,
			ReviewFallback: cfg.ModelReviewFallback,
		}),
		Client:    client,
		Validator: quality.NewReportValidator(),
		Cache: cache.NewReviewCache(cache.Config{
			TTL:        time.Duration(cfg.ReviewCacheTTLSeconds) * time.Second,
			MaxEntries: cfg.ReviewCacheMaxEntries,
		}),
		PromptsDir: cfg.PromptsDir,
		Logger:     logger,
	})

	jobs := service.NewJobsService(repo, producer)

	if cfg.AsyncReviewsEnabled && cfg.WorkerEnabled {
		processor := worker.NewProcessor(consumer, repo, engine, cfg.WorkerConcurrency, logger)
		go processor.Start(rootCtx)
	}

	api := handlers.NewAPI(handlers.Dependencies{
		Jobs:         jobs,
		Engine:       engine,
		Rules:        policy.NewSubmissionRules(cfg.AllowedExtensions, cfg.MaxCodeBytes),
		Provider:     client.Provider(),
		AsyncEnabled: cfg.AsyncReviewsEnabled,
		Logger:       logger,
	})

	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on :%s (provider=%s async=%t)", cfg.Port, client.Provider(), cfg.AsyncReviewsEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()

	<-rootCtx.Done()
	logger.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
}

// setupRepository prefers Postgres and falls back to the in-memory store,
// which keeps local development working without a database.
func setupRepository(ctx context.Context, cfg config.Config, logger *log.Logger) repository.JobsRepository {
	if cfg.DatabaseURL == "" {
		logger.Println("DATABASE_URL not set, using in-memory job store")
		return repository.NewMemoryJobsRepository()
	}
	repo, err := repository.NewPostgresJobsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Printf("postgres unavailable (%v), using in-memory job store", err)
		return repository.NewMemoryJobsRepository()
	}
	logger.Println("using postgres job store")
	return repo
}

// setupQueue prefers Redis Streams and falls back to the in-process channel
// queue. The producer may additionally be wrapped with batching.
func setupQueue(ctx context.Context, cfg config.Config, logger *log.Logger) (queue.Producer, queue.Consumer, func()) {
	var producer queue.Producer
	var consumer queue.Consumer
	closeFns := make([]func(), 0, 2)

	if cfg.RedisAddr != "" {
		streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Stream:    cfg.RedisStream,
			DLQStream: cfg.RedisDLQ,
			Group:     cfg.RedisGroup,
			Consumer:  cfg.RedisConsumer,
		})
		if err != nil {
			logger.Printf("redis unavailable (%v), using local queue", err)
		} else {
			logger.Println("using redis streams queue")
			producer, consumer = streams, streams
			closeFns = append(closeFns, func() { streams.Close() })
		}
	}
	if producer == nil {
		local := queue.NewLocalQueue(256, 3, logger)
		producer, consumer = local, local
	}

	if cfg.QueueBatchingEnabled {
		batching := queue.NewBatchingProducer(ctx, producer, queue.BatchingConfig{
			MaxBatchSize:       cfg.QueueBatchSize,
			FlushInterval:      time.Duration(cfg.QueueBatchFlushMS) * time.Millisecond,
			FlushTimeout:       time.Duration(cfg.QueueBatchFlushTimeoutMS) * time.Millisecond,
			QueueCapacity:      cfg.QueueBatchQueueCapacity,
			MaxInFlightBatches: cfg.QueueBatchMaxInFlight,
		})
		producer = batching
		closeFns = append([]func(){batching.Close}, closeFns...)
	}

	return producer, consumer, func() {
		for _, fn := range closeFns {
			fn()
		}
	}
}

func setupClient(cfg config.Config) ai.TextGenerator {
	if cfg.Provider == "openrouter" {
		return ai.NewOpenRouterClient(ai.OpenRouterClientConfig{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Timeout:    time.Duration(cfg.ModelTimeoutMS) * time.Millisecond,
			MaxRetries: cfg.ModelMaxRetries,
			SiteURL:    cfg.OpenRouterSiteURL,
			AppName:    cfg.OpenRouterAppName,
		})
	}
	return ai.NewOpenAIClient(ai.OpenAIClientConfig{
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Timeout:      time.Duration(cfg.ModelTimeoutMS) * time.Millisecond,
		MaxRetries:   cfg.ModelMaxRetries,
		Organization: cfg.OpenAIOrganization,
	})
}
