package config

import (
	"os"
	"strconv"
	"strings"
)

// Config centralizes runtime settings for the API and the worker.
type Config struct {
	Port string

	AuthToken          string
	CORSAllowedOrigins []string

	DatabaseURL string

	// Provider selects the model integration: "openai" or "openrouter".
	Provider string

	OpenAIAPIKey       string
	OpenAIBaseURL      string
	OpenAIOrganization string

	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	OpenRouterSiteURL string
	OpenRouterAppName string

	ModelTimeoutMS      int
	ModelMaxRetries     int
	ModelReviewPrimary  string
	ModelReviewFallback string

	ReviewCacheTTLSeconds int
	ReviewCacheMaxEntries int
	PromptsDir            string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	RateLimitRPS   float64
	RateLimitBurst int

	QueueBatchingEnabled     bool
	QueueBatchSize           int
	QueueBatchFlushMS        int
	QueueBatchFlushTimeoutMS int
	QueueBatchQueueCapacity  int
	QueueBatchMaxInFlight    int

	AllowedExtensions []string
	MaxCodeBytes      int

	AsyncReviewsEnabled bool
	WorkerEnabled       bool
	WorkerConcurrency   int
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		Provider: getEnv("MODEL_PROVIDER", "openai"),

		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrganization: getEnv("OPENAI_ORGANIZATION", ""),

		OpenRouterAPIKey:  getEnv("OPENROUTER_API_KEY", ""),
		OpenRouterBaseURL: getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		OpenRouterSiteURL: getEnv("OPENROUTER_SITE_URL", ""),
		OpenRouterAppName: getEnv("OPENROUTER_APP_NAME", "Code Review Backend"),

		ModelTimeoutMS:      getEnvInt("MODEL_TIMEOUT_MS", 60000),
		ModelMaxRetries:     getEnvInt("MODEL_MAX_RETRIES", 2),
		ModelReviewPrimary:  getEnv("MODEL_REVIEW_PRIMARY", "gpt-4o"),
		ModelReviewFallback: getEnv("MODEL_REVIEW_FALLBACK", "gpt-4o-mini"),

		ReviewCacheTTLSeconds: getEnvInt("REVIEW_CACHE_TTL_SECONDS", 900),
		ReviewCacheMaxEntries: getEnvInt("REVIEW_CACHE_MAX_ENTRIES", 2000),
		PromptsDir:            getEnv("PROMPTS_DIR", "prompts"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "review_jobs"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "review_jobs_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "review_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 40),

		QueueBatchingEnabled:     getEnvBool("QUEUE_BATCHING_ENABLED", false),
		QueueBatchSize:           getEnvInt("QUEUE_BATCH_SIZE", 32),
		QueueBatchFlushMS:        getEnvInt("QUEUE_BATCH_FLUSH_MS", 25),
		QueueBatchFlushTimeoutMS: getEnvInt("QUEUE_BATCH_FLUSH_TIMEOUT_MS", 3000),
		QueueBatchQueueCapacity:  getEnvInt("QUEUE_BATCH_QUEUE_CAPACITY", 2048),
		QueueBatchMaxInFlight:    getEnvInt("QUEUE_BATCH_MAX_IN_FLIGHT", 4),

		AllowedExtensions: getEnvList("ALLOWED_EXTENSIONS", nil),
		MaxCodeBytes:      getEnvInt("MAX_CODE_BYTES", 0),

		AsyncReviewsEnabled: getEnvBool("ASYNC_REVIEWS_ENABLED", true),
		WorkerEnabled:       getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	if len(result) == 0 {
		return fallback
	}
	return result
}
