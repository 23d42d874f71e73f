package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/storage"
	"bitbattle/internal/sandbox"
	"bitbattle/internal/sandbox/engine"
	"bitbattle/pkg/utils/logger"
)

const (
	defaultServerPort      = 4000
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultRedisAddr   = "127.0.0.1:6379"
	defaultWorkRoot    = "/tmp/bitbattle"
	defaultAccessTTL   = 15 * time.Minute
	defaultRefreshTTL  = 7 * 24 * time.Hour
	defaultRetryTopic  = "scoring.retry"
	defaultDeadLetter  = "scoring.dead"
	defaultArchivePath = "submissions"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`

	// FrontendOrigin is the comma-separated list of browser origins
	// allowed by CORS. Populated from FRONTEND_ORIGIN.
	FrontendOrigin string `yaml:"frontendOrigin"`
}

// DatabaseConfig holds relational store settings. The URL scheme picks the
// provider: postgres:// or postgresql://.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig holds token issuing settings.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwtSecret"`
	JWTIssuer       string        `yaml:"jwtIssuer"`
	AccessTokenTTL  time.Duration `yaml:"accessTokenTTL"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTTL"`
}

// SandboxAppConfig holds sandbox pool and engine settings.
type SandboxAppConfig struct {
	// Concurrency bounds simultaneous sandbox runs. Zero falls back to
	// min(NumCPU, 8). Populated from SANDBOX_CONCURRENCY.
	Concurrency int `yaml:"concurrency"`

	// WorkRoot is the host directory for per-run workspaces.
	WorkRoot string `yaml:"workRoot"`

	Engine engine.Config `yaml:"engine"`
}

// RoomConfig holds room lifecycle tuning.
type RoomConfig struct {
	Countdown    time.Duration `yaml:"countdown"`
	EndedGrace   time.Duration `yaml:"endedGrace"`
	ScoreTimeout time.Duration `yaml:"scoreTimeout"`

	CodeChangeBurst        int `yaml:"codeChangeBurst"`
	CodeChangeRefillPerSec int `yaml:"codeChangeRefillPerSec"`
}

// MatchmakingConfig holds queue tuning.
type MatchmakingConfig struct {
	TickInterval       time.Duration `yaml:"tickInterval"`
	BaseRatingWindow   int           `yaml:"baseRatingWindow"`
	MaxRatingExpansion int           `yaml:"maxRatingExpansion"`
	MaxWait            time.Duration `yaml:"maxWait"`
}

// KafkaAppConfig holds the optional scoring retry queue settings. Empty
// brokers disable the queue; failed writes are then log-only.
type KafkaAppConfig struct {
	Brokers         []string `yaml:"brokers"`
	ClientID        string   `yaml:"clientID"`
	RetryTopic      string   `yaml:"retryTopic"`
	DeadLetterTopic string   `yaml:"deadLetterTopic"`
}

// ArchiveConfig holds the optional submission archive settings. An empty
// endpoint disables archiving.
type ArchiveConfig struct {
	MinIO  storage.MinIOConfig `yaml:"minio"`
	Prefix string              `yaml:"prefix"`
}

// AppConfig holds battle-server config.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Logger      logger.Config     `yaml:"logger"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       cache.RedisConfig `yaml:"redis"`
	Auth        AuthConfig        `yaml:"auth"`
	Sandbox     SandboxAppConfig  `yaml:"sandbox"`
	Room        RoomConfig        `yaml:"room"`
	Matchmaking MatchmakingConfig `yaml:"matchmaking"`
	Kafka       KafkaAppConfig    `yaml:"kafka"`
	Archive     ArchiveConfig     `yaml:"archive"`
}

// loadAppConfig reads the YAML file, layers the environment overrides on
// top, and validates what the server cannot run without. A missing file at
// the default path is fine (env-only deployment); an explicitly requested
// file must exist.
func loadAppConfig(path string, explicit bool) (*AppConfig, error) {
	var cfg AppConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file failed: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
		// defaults + environment only
	default:
		return nil, fmt.Errorf("read config file failed: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (set DB_URL)")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required (set JWT_SECRET)")
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *AppConfig) error {
	if raw := os.Getenv("SERVER_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid SERVER_PORT: %q", raw)
		}
		cfg.Server.Port = port
	}
	if raw := os.Getenv("FRONTEND_ORIGIN"); raw != "" {
		cfg.Server.FrontendOrigin = raw
	}
	if raw := os.Getenv("SANDBOX_IMAGE"); raw != "" {
		cfg.Sandbox.Engine.RootFS = raw
	}
	if raw := os.Getenv("DB_URL"); raw != "" {
		cfg.Database.URL = raw
	}
	if raw := os.Getenv("JWT_SECRET"); raw != "" {
		cfg.Auth.JWTSecret = raw
	}
	if raw := os.Getenv("SANDBOX_CONCURRENCY"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid SANDBOX_CONCURRENCY: %q", raw)
		}
		cfg.Sandbox.Concurrency = n
	}
	if raw := os.Getenv("REDIS_ADDR"); raw != "" {
		cfg.Redis.Addr = raw
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaultRedisAddr
	}
	applyRedisDefaults(&cfg.Redis)
	if cfg.Auth.AccessTokenTTL == 0 {
		cfg.Auth.AccessTokenTTL = defaultAccessTTL
	}
	if cfg.Auth.RefreshTokenTTL == 0 {
		cfg.Auth.RefreshTokenTTL = defaultRefreshTTL
	}
	if cfg.Sandbox.Concurrency <= 0 {
		cfg.Sandbox.Concurrency = sandbox.DefaultPoolSize()
	}
	if cfg.Sandbox.WorkRoot == "" {
		cfg.Sandbox.WorkRoot = defaultWorkRoot
	}
	if cfg.Kafka.RetryTopic == "" {
		cfg.Kafka.RetryTopic = defaultRetryTopic
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = defaultDeadLetter
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = defaultArchivePath
	}
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = defaults.MinIdleConns
	}
	if cfg.PoolTimeout == 0 {
		cfg.PoolTimeout = defaults.PoolTimeout
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = defaults.ConnMaxIdleTime
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaults.ConnMaxLifetime
	}
}

func corsOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
