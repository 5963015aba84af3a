package shareapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls share API behavior.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64
	// ServiceKey authenticates the owner backend on /api routes. Empty disables them.
	ServiceKey string
	// RetryAfter is advertised to clients when the store is unavailable.
	RetryAfter time.Duration
}

// LoadConfigFromEnv loads share API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:   envBool("DECISIONLOGR_API_TRUST_PROXY", false),
		MaxBodyBytes: envInt64("DECISIONLOGR_API_MAX_BODY_BYTES", 64<<10),
		ServiceKey:   strings.TrimSpace(os.Getenv("DECISIONLOGR_SERVICE_KEY")),
		RetryAfter:   envDuration("DECISIONLOGR_API_RETRY_AFTER", 5*time.Second),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 64 << 10
	}
	if c.RetryAfter < time.Second {
		c.RetryAfter = 5 * time.Second
	}
	c.ServiceKey = strings.TrimSpace(c.ServiceKey)
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
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
