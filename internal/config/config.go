package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultCatalogAPIURL    = "https://eadvs-cscc-catalog-api.apps.asu.edu/catalog-microservices/api/v1/search/classes"
	defaultCatalogSearchURL = "https://catalog.apps.asu.edu/catalog/classes/classlist"
)

type Config struct {
	Env string

	// State
	StateFile string

	// Sweeps
	CheckInterval      time.Duration
	CheckDelay         time.Duration
	SweepWorkers       int
	MaxRequestsPerUser int
	DefaultTerm        string
	BackoffAfter       int // 0 disables per-request backoff

	// Catalog API
	CatalogAPIURL     string
	CatalogSearchURL  string
	CatalogTimeout    time.Duration
	CatalogMaxRetries int

	// Headless browser
	BrowserTimeout     time.Duration
	BrowserLaunchWait  time.Duration
	BrowserBin         string
	BrowserHeadless    bool
	BreakerMaxFailures int
	BreakerReset       time.Duration

	// Discord
	DiscordEnabled bool
	DiscordToken   string
	DiscordAppID   string
	NotifySink     string // "discord" | "log"

	// Redis
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NotifyIdempotencyTTL time.Duration
	NotifyRLLimit        int
	NotifyRLWindow       time.Duration

	// RabbitMQ
	RabbitEnabled  bool
	RabbitURL      string
	RabbitExchange string

	// Admin HTTP
	HTTPEnabled bool
	HTTPAddr    string
	RLEnabled   bool
	RLLimit     int
	RLWindow    time.Duration

	// S3 snapshot backup
	S3BackupEnabled   bool
	S3Endpoint        string
	S3Region          string
	S3Bucket          string
	S3Key             string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	ShutdownWait time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Env = getEnvFirst([]string{"APP_ENV", "ENV"}, "dev")

	cfg.StateFile = getEnv("STATE_FILE", "class_requests.json")

	cfg.CheckInterval = getDuration("CHECK_INTERVAL", 5*time.Minute)
	cfg.CheckDelay = getDuration("CHECK_DELAY", 500*time.Millisecond)
	cfg.SweepWorkers = getInt("SWEEP_WORKERS", 1)
	cfg.MaxRequestsPerUser = getInt("MAX_REQUESTS_PER_USER", 10)
	cfg.DefaultTerm = getEnv("DEFAULT_TERM", "2261")
	cfg.BackoffAfter = getInt("BACKOFF_AFTER", 0)

	cfg.CatalogAPIURL = getEnv("CATALOG_API_URL", defaultCatalogAPIURL)
	cfg.CatalogSearchURL = getEnv("CATALOG_SEARCH_URL", defaultCatalogSearchURL)
	cfg.CatalogTimeout = getDuration("CATALOG_TIMEOUT", 10*time.Second)
	cfg.CatalogMaxRetries = getInt("CATALOG_MAX_RETRIES", 2)

	cfg.BrowserTimeout = getDuration("BROWSER_TIMEOUT", 20*time.Second)
	cfg.BrowserLaunchWait = getDuration("BROWSER_LAUNCH_TIMEOUT", 2*time.Minute)
	cfg.BrowserBin = getEnv("BROWSER_BIN", "")
	cfg.BrowserHeadless = getBool("BROWSER_HEADLESS", true)
	cfg.BreakerMaxFailures = getInt("BREAKER_MAX_FAILURES", 5)
	cfg.BreakerReset = getDuration("BREAKER_RESET", 2*time.Minute)

	cfg.DiscordEnabled = getBool("DISCORD_ENABLED", false)
	cfg.DiscordToken = getEnv("DISCORD_TOKEN", "")
	cfg.DiscordAppID = getEnv("DISCORD_APP_ID", "")
	defSink := "log"
	if cfg.DiscordEnabled {
		defSink = "discord"
	}
	cfg.NotifySink = strings.ToLower(getEnv("NOTIFY_SINK", defSink))

	cfg.RedisEnabled = getBool("REDIS_ENABLED", false)
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getInt("REDIS_DB", 0)

	cfg.NotifyIdempotencyTTL = getDuration("NOTIFY_IDEMPOTENCY_TTL", 7*24*time.Hour)
	cfg.NotifyRLLimit = getInt("NOTIFY_RL_LIMIT", 20)
	cfg.NotifyRLWindow = getDuration("NOTIFY_RL_WINDOW", time.Hour)

	cfg.RabbitEnabled = getBool("RABBIT_ENABLED", false)
	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.RabbitExchange = getEnv("RABBIT_EXCHANGE", "seatwatch.events")

	cfg.HTTPEnabled = getBool("HTTP_ENABLED", true)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8095")
	cfg.RLEnabled = getBool("RL_ENABLED", false)
	cfg.RLLimit = getInt("RL_LIMIT", 60)
	cfg.RLWindow = getDuration("RL_WINDOW", time.Minute)

	cfg.S3BackupEnabled = getBool("S3_BACKUP_ENABLED", false)
	cfg.S3Endpoint = getEnv("S3_ENDPOINT", "")
	cfg.S3Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3Bucket = getEnv("S3_BUCKET", "")
	cfg.S3Key = getEnv("S3_KEY", "seatwatch/class_requests.json")
	cfg.S3AccessKeyID = getEnv("S3_ACCESS_KEY_ID", "")
	cfg.S3SecretAccessKey = getEnv("S3_SECRET_ACCESS_KEY", "")
	cfg.S3UsePathStyle = getBool("S3_USE_PATH_STYLE", false)

	cfg.ShutdownWait = getDuration("SHUTDOWN_WAIT", 15*time.Second)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("CHECK_INTERVAL must be positive, got %s", c.CheckInterval)
	}
	if c.CheckDelay < 0 {
		return fmt.Errorf("CHECK_DELAY must not be negative, got %s", c.CheckDelay)
	}
	switch c.NotifySink {
	case "log":
	case "discord":
		if !c.DiscordEnabled {
			return fmt.Errorf("NOTIFY_SINK=discord requires DISCORD_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_SINK %q (want discord or log)", c.NotifySink)
	}
	if c.DiscordEnabled && c.DiscordToken == "" {
		return fmt.Errorf("discord enabled but missing DISCORD_TOKEN")
	}
	if c.RabbitEnabled && c.RabbitURL == "" {
		return fmt.Errorf("rabbit enabled but missing RABBIT_URL")
	}
	if c.S3BackupEnabled && c.S3Bucket == "" {
		return fmt.Errorf("s3 backup enabled but missing S3_BUCKET")
	}
	// Guard: prevent the classic "REDIS_ADDR=localhost:6379 OTHER=..." parsing issue
	if strings.Contains(c.RedisAddr, " ") {
		return fmt.Errorf("bad REDIS_ADDR (contains spaces): %q", c.RedisAddr)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvFirst(keys []string, def string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return def
}

func getInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n := def
	_, _ = fmt.Sscanf(v, "%d", &n)
	if n <= 0 {
		return def
	}
	return n
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getBool(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
