package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	ModelsDir        string        `envconfig:"MODELS_DIR" default:"data/models"`
	StoreBackend     string        `envconfig:"STORE_BACKEND" default:"json"`
	QueueFile        string        `envconfig:"QUEUE_FILE" default:"data/download_queue.json"`
	DBPath           string        `envconfig:"DB_PATH" default:"data/downloads.db"`
	ProgressInterval time.Duration `envconfig:"PROGRESS_INTERVAL" default:"1s"`

	KeepCompletedFor  time.Duration `envconfig:"KEEP_COMPLETED_FOR" default:"0s"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`

	Hub struct {
		BaseURL     string `split_words:"true" default:"https://huggingface.co"`
		Token       string `split_words:"true"`
		Revision    string `split_words:"true" default:"main"`
		MaxParallel int    `split_words:"true" default:"4"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"modelq"`
		OTLPEndpoint string `split_words:"true"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:9091"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"30s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if cfg.KeepCompletedFor < 0 {
		return nil, fmt.Errorf("KEEP_COMPLETED_FOR must not be negative: %s", cfg.KeepCompletedFor)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	return logctx.ParseLevel(c.LogLevel)
}
