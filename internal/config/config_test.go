package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/optimg/internal/codec"
	"github.com/dunamismax/optimg/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"OPTIMG_TARGET_FORMAT", "OPTIMG_QUALITY", "OPTIMG_ENCODER_BLOCK_SIZE", "WEBHOOK_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Codec.TargetFormat != domain.FormatWebP {
		t.Fatalf("expected webp target, got %q", cfg.Codec.TargetFormat)
	}
	if cfg.Codec.Quality != codec.DefaultQuality || cfg.Codec.BlockSize != codec.DefaultBlockSize {
		t.Fatalf("unexpected codec defaults %+v", cfg.Codec)
	}
	if cfg.Webhook.Timeout != 10*time.Second {
		t.Fatalf("expected 10s webhook timeout, got %s", cfg.Webhook.Timeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OPTIMG_TARGET_FORMAT", "jpg")
	t.Setenv("OPTIMG_QUALITY", "65")
	t.Setenv("OPTIMG_LOSSLESS", "true")
	t.Setenv("OPTIMG_ENCODER_BLOCK_SIZE", "4096")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()
	opts := cfg.Codec.Options()
	if opts.Format != domain.FormatJPEG || opts.Quality != 65 || !opts.Lossless || opts.BlockSize != 4096 {
		t.Fatalf("unexpected codec options %+v", opts)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Fatalf("expected 30s window, got %s", cfg.RateLimit.Window)
	}
	if cfg.Queue.RedisDB != 0 {
		t.Fatalf("expected invalid int to fall back to 0, got %d", cfg.Queue.RedisDB)
	}
}

func TestLoadRejectsUnsupportedTarget(t *testing.T) {
	t.Setenv("OPTIMG_TARGET_FORMAT", "gif")
	if got := Load().Codec.TargetFormat; got != domain.FormatWebP {
		t.Fatalf("expected fallback to webp, got %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("OPTIMG_TEST_DOTENV_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("OPTIMG_TEST_DOTENV_VALUE") })

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("load dotenv: %v", err)
	}
	if got := os.Getenv("OPTIMG_TEST_DOTENV_VALUE"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
