// Package config loads mnemosyne-brain's runtime configuration from the
// process environment, following the defaults in spec section 6.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in the spec's "Environment configuration"
// table, plus the numeric defaults from the Defaults list.
type Config struct {
	// DBPath is the local row-store file location.
	DBPath string
	// ReadOnly opens the row store immutable, for dashboard-style consumers.
	ReadOnly bool

	// BrokerHost enables stream mode when non-empty and reachable.
	BrokerHost string
	BrokerPort int
	BrokerDB   int

	// VisionBackend selects "external" (HTTP) or "inprocess" (local GPU load).
	VisionBackend  string
	VisionEndpoint string
	VisionModel    string

	LLMEndpoint   string
	LLMHeavyModel string
	LLMLightModel string

	// VaultPath enables wikilink augmentation when non-empty.
	VaultPath string

	ScreenshotDir string

	IdleThreshold       time.Duration
	MaxSessionDuration  time.Duration
	MinSessionDuration  time.Duration
	VRAMThresholdBytes  int64
	CyclePeriod         time.Duration
	DedupHorizon        time.Duration
	DedupSuppressorTick time.Duration

	EventRetention   time.Duration
	SessionRetention time.Duration

	OCRLanguages string

	LogLevel string
}

const (
	defaultDBPath             = ".mnemosyne/activity.db"
	defaultLLMEndpoint        = "http://localhost:11434"
	defaultIdleThreshold      = 300 * time.Second
	defaultMaxSessionDuration = 1800 * time.Second
	defaultMinSessionDuration = 5 * time.Second
	defaultVRAMThresholdBytes = 4 * 1024 * 1024 * 1024
	defaultCyclePeriod        = 30 * time.Second
	defaultDedupHorizon       = 15 * time.Second
	defaultDedupSuppressorTTL = 60 * time.Second
	defaultEventRetention     = 7 * 24 * time.Hour
	defaultSessionRetention   = 30 * 24 * time.Hour
	defaultScreenshotMaxAge   = time.Hour
)

// Load reads configuration from a .env file (if present, never overriding a
// real environment variable) and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:              envOr("MNEMOSYNE_DB_PATH", defaultDBPath),
		ReadOnly:            envBool("MNEMOSYNE_READ_ONLY", false),
		BrokerHost:          os.Getenv("MNEMOSYNE_BROKER_HOST"),
		BrokerPort:          envInt("MNEMOSYNE_BROKER_PORT", 6379),
		BrokerDB:            envInt("MNEMOSYNE_BROKER_DB", 0),
		VisionBackend:       envOr("MNEMOSYNE_VISION_BACKEND", "external"),
		VisionEndpoint:      os.Getenv("MNEMOSYNE_VISION_ENDPOINT"),
		VisionModel:         envOr("MNEMOSYNE_VISION_MODEL", "moondream"),
		LLMEndpoint:         envOr("MNEMOSYNE_LLM_ENDPOINT", defaultLLMEndpoint),
		LLMHeavyModel:       envOr("MNEMOSYNE_LLM_HEAVY_MODEL", "llama3.1:70b"),
		LLMLightModel:       envOr("MNEMOSYNE_LLM_LIGHT_MODEL", "llama3.1:8b"),
		VaultPath:           os.Getenv("MNEMOSYNE_VAULT_PATH"),
		ScreenshotDir:       envOr("MNEMOSYNE_SCREENSHOT_DIR", "screenshots"),
		IdleThreshold:       envDuration("MNEMOSYNE_IDLE_THRESHOLD", defaultIdleThreshold),
		MaxSessionDuration:  envDuration("MNEMOSYNE_MAX_SESSION_DURATION", defaultMaxSessionDuration),
		MinSessionDuration:  envDuration("MNEMOSYNE_MIN_SESSION_DURATION", defaultMinSessionDuration),
		VRAMThresholdBytes:  envInt64("MNEMOSYNE_VRAM_THRESHOLD_BYTES", defaultVRAMThresholdBytes),
		CyclePeriod:         envDuration("MNEMOSYNE_CYCLE_PERIOD", defaultCyclePeriod),
		DedupHorizon:        envDuration("MNEMOSYNE_DEDUP_HORIZON", defaultDedupHorizon),
		DedupSuppressorTick: envDuration("MNEMOSYNE_DEDUP_SUPPRESSOR_TTL", defaultDedupSuppressorTTL),
		EventRetention:      envDuration("MNEMOSYNE_EVENT_RETENTION", defaultEventRetention),
		SessionRetention:    envDuration("MNEMOSYNE_SESSION_RETENTION", defaultSessionRetention),
		OCRLanguages:        envOr("MNEMOSYNE_OCR_LANGUAGES", "eng+rus"),
		LogLevel:            envOr("MNEMOSYNE_LOG_LEVEL", "info"),
	}

	return cfg
}

// StreamMode reports whether the configuration selects the broker-backed
// ingest path (spec section 4.2).
func (c *Config) StreamMode() bool {
	return c.BrokerHost != ""
}

// ScreenshotMaxAge is the maintenance sweep's stale-screenshot threshold.
func (c *Config) ScreenshotMaxAge() time.Duration {
	return defaultScreenshotMaxAge
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	// Bare integers are treated as seconds, matching the spec's "30 s" style defaults.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
