package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // json | pretty | auto
	LogColor  bool

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Store selection: DatabaseURL wins, then SQLitePath, else in-memory.
	DatabaseURL   string
	DBSchema      string
	DBMaxConns    int32
	DBMinConns    int32
	DBApplySchema bool
	SQLitePath    string

	// If true, /readyz returns 503 unless a persistent store is configured and reachable.
	ReadinessRequireDB bool

	// Security policy:
	// If true, DECISIONLOGR_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and client IPs are HMAC-hashed.
	RequireTokenHMAC bool

	CORSAllowedOrigins []string
	CORSMaxAgeSeconds  int

	MetricsEnabled bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("DECISIONLOGR_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("DECISIONLOGR_LOG_LEVEL", "info"),
		LogFormat: EnvString("DECISIONLOGR_LOG_FORMAT", "json"),
		LogColor:  EnvBool("DECISIONLOGR_LOG_COLOR", true) && EnvString("NO_COLOR", "") == "",

		ReadHeaderTimeout: EnvDuration("DECISIONLOGR_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("DECISIONLOGR_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("DECISIONLOGR_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("DECISIONLOGR_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("DECISIONLOGR_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("DECISIONLOGR_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("DECISIONLOGR_DATABASE_URL", ""),
		DBSchema:      EnvString("DECISIONLOGR_DB_SCHEMA", "decisionlogr"),
		DBMaxConns:    EnvInt32("DECISIONLOGR_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("DECISIONLOGR_DB_MIN_CONNS", 0),
		DBApplySchema: EnvBool("DECISIONLOGR_DB_APPLY_SCHEMA", false),
		SQLitePath:    EnvString("DECISIONLOGR_SQLITE_PATH", ""),

		ReadinessRequireDB: EnvBool("DECISIONLOGR_READINESS_REQUIRE_DB", false),

		RequireTokenHMAC: EnvBool("DECISIONLOGR_REQUIRE_TOKEN_HMAC", false),

		CORSAllowedOrigins: EnvList("DECISIONLOGR_CORS_ALLOWED_ORIGINS"),
		CORSMaxAgeSeconds:  EnvInt("DECISIONLOGR_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: EnvBool("DECISIONLOGR_METRICS_ENABLED", true),
	}
}
