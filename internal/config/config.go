package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SessionBackendFile  = "file"
	SessionBackendRedis = "redis"
)

type AppConfig struct {
	SessionBackend string
	SessionsFile   string
	CursorFile     string
	CursorSeed     int64

	RedisURL       string
	RedisKeyPrefix string
	DatabaseURL    string

	StockfishPath      string
	EngineThinkTime    time.Duration
	EngineTimeoutGrace time.Duration
	EngineThreads      int
	EngineHashMB       int

	PlatformBaseURL string
	PlatformToken   string
	PlatformTimeout time.Duration
	PlatformRetries int
	BotHandle       string

	ImageBaseURL string
	ImageTimeout time.Duration
	ImageDir     string

	PollInterval time.Duration
	ChunkLimit   int
	MoveMarker   string
	MessagesDir  string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	AlertFrom    string
	AlertTo      []string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		SessionBackend:     SessionBackendFile,
		SessionsFile:       "games.txt",
		CursorFile:         "last_seen_id.txt",
		RedisURL:           "redis://localhost:6379/0",
		RedisKeyPrefix:     "chessbot",
		EngineThinkTime:    5 * time.Second,
		EngineTimeoutGrace: 5 * time.Second,
		EngineThreads:      1,
		EngineHashMB:       64,
		PlatformTimeout:    10 * time.Second,
		PlatformRetries:    2,
		ImageBaseURL:       "http://www.fen-to-image.com/image",
		ImageTimeout:       10 * time.Second,
		PollInterval:       120 * time.Second,
		ChunkLimit:         240,
		MoveMarker:         "captures",
		SMTPPort:           587,
	}

	if v := env("SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = strings.ToLower(v)
	}
	if v := env("SESSIONS_FILE"); v != "" {
		cfg.SessionsFile = v
	}
	if v := env("CURSOR_FILE"); v != "" {
		cfg.CursorFile = v
	}
	if v := env("CURSOR_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("CURSOR_SEED must be a non-negative integer: %q", v)
		}
		cfg.CursorSeed = n
	}

	if v := env("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := env("REDIS_KEY_PREFIX"); v != "" {
		cfg.RedisKeyPrefix = v
	}
	cfg.DatabaseURL = env("DATABASE_URL")

	// Engine
	cfg.StockfishPath = env("STOCKFISH_PATH")
	if d, ok := envDuration("ENGINE_THINK_TIME"); ok {
		cfg.EngineThinkTime = d
	}
	if d, ok := envDuration("ENGINE_TIMEOUT_GRACE"); ok {
		cfg.EngineTimeoutGrace = d
	}
	if n, ok := envPositiveInt("ENGINE_THREADS"); ok {
		cfg.EngineThreads = n
	}
	if n, ok := envPositiveInt("ENGINE_HASH_MB"); ok {
		cfg.EngineHashMB = n
	}

	// Platform
	cfg.PlatformBaseURL = strings.TrimRight(env("PLATFORM_BASE_URL"), "/")
	cfg.PlatformToken = env("PLATFORM_TOKEN")
	if d, ok := envDuration("PLATFORM_TIMEOUT"); ok {
		cfg.PlatformTimeout = d
	}
	if v := env("PLATFORM_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.PlatformRetries = n
		}
	}
	cfg.BotHandle = strings.TrimPrefix(env("BOT_HANDLE"), "@")

	if v := env("IMAGE_BASE_URL"); v != "" {
		cfg.ImageBaseURL = strings.TrimRight(v, "/")
	}
	if d, ok := envDuration("IMAGE_TIMEOUT"); ok {
		cfg.ImageTimeout = d
	}
	cfg.ImageDir = env("IMAGE_DIR")

	if d, ok := envDuration("POLL_INTERVAL"); ok {
		cfg.PollInterval = d
	}
	if n, ok := envPositiveInt("CHUNK_LIMIT"); ok {
		cfg.ChunkLimit = n
	}
	if v := env("MOVE_MARKER"); v != "" {
		cfg.MoveMarker = v
	}
	cfg.MessagesDir = env("MESSAGES_DIR")

	// Alerting
	cfg.SMTPHost = env("SMTP_HOST")
	if n, ok := envPositiveInt("SMTP_PORT"); ok {
		cfg.SMTPPort = n
	}
	cfg.SMTPUser = env("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.AlertFrom = env("ALERT_FROM")
	if v := env("ALERT_TO"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AlertTo = append(cfg.AlertTo, s)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.SessionBackend {
	case SessionBackendFile, SessionBackendRedis:
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q", SessionBackendFile, SessionBackendRedis)
	}
	if c.StockfishPath == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	if c.PlatformBaseURL == "" {
		return errors.New("PLATFORM_BASE_URL is required")
	}
	if c.PlatformToken == "" {
		return errors.New("PLATFORM_TOKEN is required")
	}
	if c.SMTPHost != "" {
		if c.AlertFrom == "" {
			return errors.New("ALERT_FROM is required when SMTP_HOST is set")
		}
		if len(c.AlertTo) == 0 {
			return errors.New("ALERT_TO is required when SMTP_HOST is set")
		}
	}
	return nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// envDuration accepts Go durations ("90s") or bare seconds ("90").
func envDuration(key string) (time.Duration, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, true
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

func envPositiveInt(key string) (int, bool) {
	v := env(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
