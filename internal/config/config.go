package config

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/dunamismax/optimg/internal/codec"
	"github.com/dunamismax/optimg/internal/domain"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

type Config struct {
	Codec     CodecConfig
	API       APIConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Webhook   WebhookConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
	LogLevel  string
}

type CodecConfig struct {
	TargetFormat domain.Format
	Quality      int
	Lossless     bool
	BlockSize    int
}

func (c CodecConfig) Options() codec.Options {
	return codec.Options{
		Format:    c.TargetFormat,
		Quality:   c.Quality,
		Lossless:  c.Lossless,
		BlockSize: c.BlockSize,
	}
}

type APIConfig struct {
	Addr string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int
	MaxActiveTasks int
	MetricsAddr    string
	PublishOutputs bool
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type DatabaseConfig struct {
	DSN string
}

type WebhookConfig struct {
	SigningSecret  string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type RateLimitConfig struct {
	Enabled      bool
	Capacity     int
	Window       time.Duration
	UserIDHeader string
}

type TelemetryConfig struct {
	ServiceName  string
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

// LoadDotEnv loads the given .env files (default ./.env) into the process
// environment. Missing files are not an error; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	format := domain.ParseFormat(env("OPTIMG_TARGET_FORMAT", "webp"))
	if format != domain.FormatJPEG {
		format = domain.FormatWebP
	}

	return Config{
		Codec: CodecConfig{
			TargetFormat: format,
			Quality:      envInt("OPTIMG_QUALITY", codec.DefaultQuality),
			Lossless:     envBool("OPTIMG_LOSSLESS", false),
			BlockSize:    envInt("OPTIMG_ENCODER_BLOCK_SIZE", codec.DefaultBlockSize),
		},
		API: APIConfig{
			Addr: env("OPTIMG_API_ADDR", ":8080"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:    envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveTasks: envInt("WORKER_MAX_ACTIVE_TASKS", defaultWorkerSlots),
			MetricsAddr:    env("WORKER_METRICS_ADDR", ":9091"),
			PublishOutputs: envBool("WORKER_PUBLISH_OUTPUTS", false),
		},
		Storage: StorageConfig{
			Endpoint:  env("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: env("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: env("MINIO_SECRET_KEY", "minioadmin"),
			Bucket:    env("MINIO_BUCKET", "optimg-outputs"),
			UseSSL:    envBool("MINIO_USE_SSL", false),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		Webhook: WebhookConfig{
			SigningSecret:  env("WEBHOOK_SIGNING_SECRET", ""),
			Timeout:        envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts:    envInt("WEBHOOK_MAX_ATTEMPTS", 3),
			InitialBackoff: envDuration("WEBHOOK_INITIAL_BACKOFF", time.Second),
			MaxBackoff:     envDuration("WEBHOOK_MAX_BACKOFF", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled:      envBool("RATE_LIMIT_ENABLED", false),
			Capacity:     envInt("RATE_LIMIT_CAPACITY", 60),
			Window:       envDuration("RATE_LIMIT_WINDOW", time.Minute),
			UserIDHeader: env("RATE_LIMIT_USER_HEADER", "X-User-ID"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  env("OTEL_SERVICE_NAME", "optimg"),
			Exporter:     env("OTEL_TRACES_EXPORTER", "none"),
			OTLPEndpoint: env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		LogLevel: strings.ToLower(env("OPTIMG_LOG_LEVEL", "info")),
	}
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := cast.ToIntE(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := cast.ToBoolE(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := cast.ToDurationE(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
