package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Config holds all configuration for the application. Every option can be
// set by flag or environment variable.
type Config struct {
	Port         int    `long:"port" env:"PORT" default:"3000" description:"HTTP server port"`
	DatabasePath string `long:"database-path" env:"DATABASE_PATH" default:"timelines.db" description:"SQLite database file for preferences and cache snapshots"`

	BlueskyPDS         string `long:"bluesky-pds" env:"BLUESKY_PDS" default:"https://bsky.social" description:"Personal data server base URL"`
	BlueskyHandle      string `long:"bluesky-handle" env:"BLUESKY_HANDLE" description:"Account handle or DID" required:"true"`
	BlueskyAppPassword string `long:"bluesky-app-password" env:"BLUESKY_APP_PASSWORD" description:"App password for the account" required:"true"`

	EmbedURL    string `long:"embed-url" env:"EMBED_URL" default:"https://api.jina.ai/v1/embeddings" description:"OpenAI-compatible embeddings endpoint"`
	EmbedAPIKey string `long:"embed-api-key" env:"EMBED_API_KEY" description:"Bearer token for the embeddings endpoint; scoring is disabled when empty"`
	EmbedModel  string `long:"embed-model" env:"EMBED_MODEL" default:"jina-embeddings-v3" description:"Embedding model name"`

	CacheRedisAddr string        `long:"cache-redis-addr" env:"CACHE_REDIS_ADDR" description:"Persist response caches to Redis at this address instead of SQLite"`
	CacheFlush     time.Duration `long:"cache-flush" env:"CACHE_FLUSH" default:"1m" description:"How often response caches are persisted"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

// ErrHelp is returned by Load when usage was requested and printed.
var ErrHelp = errors.New("help requested")

// Load reads configuration from command-line args and environment variables
// with sensible defaults.
func Load(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, ErrHelp
		}
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if cfg.BlueskyHandle == "" || cfg.BlueskyAppPassword == "" {
		return nil, errors.New("BLUESKY_HANDLE and BLUESKY_APP_PASSWORD are required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	return &cfg, nil
}

// ScoringEnabled reports whether an embeddings endpoint is configured.
func (c *Config) ScoringEnabled() bool {
	return c.EmbedURL != "" && c.EmbedAPIKey != ""
}
