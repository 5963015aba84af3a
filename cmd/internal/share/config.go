package share

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls gate behavior and token defaults.
type Config struct {
	// StoreTimeout bounds every token-store round trip; exceeding it yields StoreUnavailableError.
	StoreTimeout time.Duration
	// LogTimeout bounds a best-effort access-log append.
	LogTimeout time.Duration

	TokenBytes int
	// DefaultTTL applies when CreateToken gets no expiry; 0 means tokens do not expire.
	DefaultTTL time.Duration
	// MaxTTL caps any expiry relative to now; 0 disables the cap.
	MaxTTL time.Duration

	MaxClientFieldLen int
	MaxLogPageSize    int
}

// DefaultConfig returns the gate defaults.
func DefaultConfig() Config {
	return Config{
		StoreTimeout:      3 * time.Second,
		LogTimeout:        2 * time.Second,
		TokenBytes:        32,
		DefaultTTL:        0,
		MaxTTL:            365 * 24 * time.Hour,
		MaxClientFieldLen: 320,
		MaxLogPageSize:    500,
	}
}

// LoadConfigFromEnv loads share config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	def := DefaultConfig()
	cfg := Config{
		StoreTimeout:      envDuration("DECISIONLOGR_SHARE_STORE_TIMEOUT", def.StoreTimeout),
		LogTimeout:        envDuration("DECISIONLOGR_SHARE_LOG_TIMEOUT", def.LogTimeout),
		TokenBytes:        envInt("DECISIONLOGR_SHARE_TOKEN_BYTES", def.TokenBytes),
		DefaultTTL:        envDurationAllowZero("DECISIONLOGR_SHARE_DEFAULT_TTL", def.DefaultTTL),
		MaxTTL:            envDurationAllowZero("DECISIONLOGR_SHARE_MAX_TTL", def.MaxTTL),
		MaxClientFieldLen: envInt("DECISIONLOGR_SHARE_MAX_CLIENT_FIELD_LEN", def.MaxClientFieldLen),
		MaxLogPageSize:    envInt("DECISIONLOGR_SHARE_MAX_LOG_PAGE", def.MaxLogPageSize),
	}
	return cfg.normalized()
}

// normalized clamps values to sensible bounds.
func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	if c.LogTimeout <= 0 {
		c.LogTimeout = def.LogTimeout
	}
	// Below 16 bytes a token is guessable.
	if c.TokenBytes < 16 {
		c.TokenBytes = def.TokenBytes
	}
	if c.DefaultTTL < 0 {
		c.DefaultTTL = 0
	}
	if c.MaxTTL < 0 {
		c.MaxTTL = 0
	}
	if c.MaxTTL > 0 && c.DefaultTTL > c.MaxTTL {
		c.DefaultTTL = c.MaxTTL
	}
	if c.MaxClientFieldLen <= 0 {
		c.MaxClientFieldLen = def.MaxClientFieldLen
	}
	if c.MaxLogPageSize <= 0 {
		c.MaxLogPageSize = def.MaxLogPageSize
	}
	return c
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// envDurationAllowZero accepts "0" to disable a limit.
func envDurationAllowZero(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
