// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, persistence, the upstream image-generation credentials and retry
// budget, watermark parameters, asset storage, and observability settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-genart-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DBConfig selects the document store backend.
type DBConfig struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres DSN
}

// GenerationConfig configures the upstream text-to-image API.
type GenerationConfig struct {
	BaseURL          string
	Model            string
	APIKeys          []string // GENERATION_API_KEYS (CSV) + GENERATION_API_KEY_1..N
	ShuffleKeys      bool
	SampleCount      int
	PersonGeneration string
	AspectRatio      string
	RequestTimeout   time.Duration
	MaxAttempts      int // 0 = 2 x number of keys
	ShortDelay       time.Duration
	LongDelay        time.Duration
	UpstreamRPS      float64 // 0 = unlimited
}

// WatermarkConfig configures logo compositing.
type WatermarkConfig struct {
	Enabled       bool
	LogoPath      string
	WidthFraction float64
	MaxWidth      int
	Padding       int
	Opacity       float64
}

// StorageConfig configures the asset store.
type StorageConfig struct {
	Driver        string // minio|filesystem
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string
	Folder        string // logical folder prefix for generated images
	LocalPath     string // filesystem driver root
}

// RedisConfig configures the optional shared key-rotation cursor.
type RedisConfig struct {
	Addr      string // empty disables Redis
	Password  string
	DB        int
	CursorKey string
}

// JobsConfig configures background maintenance.
type JobsConfig struct {
	WorkDir         string        // parent of per-request scratch directories
	JanitorSchedule string        // cron spec with seconds field
	ScratchTTL      time.Duration // scratch dirs older than this are removed
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // generation with retries can take tens of seconds
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	DB         DBConfig
	Generation GenerationConfig
	Watermark  WatermarkConfig
	Storage    StorageConfig
	Redis      RedisConfig
	Jobs       JobsConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api")),

		DB: DBConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "genart.db"),
			DSN:    getenv("DATABASE_URL", ""),
		},

		Generation: GenerationConfig{
			BaseURL:          getenv("GENERATION_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			Model:            getenv("GENERATION_MODEL", "imagen-3.0-generate-002"),
			APIKeys:          loadAPIKeys(),
			ShuffleKeys:      getbool("GENERATION_SHUFFLE_KEYS", false),
			SampleCount:      getint("GENERATION_SAMPLE_COUNT", 1),
			PersonGeneration: getenv("GENERATION_PERSON_GENERATION", "allow_adult"),
			AspectRatio:      getenv("GENERATION_ASPECT_RATIO", "1:1"),
			RequestTimeout:   getdur("GENERATION_TIMEOUT", 60*time.Second),
			MaxAttempts:      getint("GENERATION_MAX_ATTEMPTS", 0),
			ShortDelay:       getdur("GENERATION_SHORT_DELAY", time.Second),
			LongDelay:        getdur("GENERATION_LONG_DELAY", 5*time.Second),
			UpstreamRPS:      getfloat("GENERATION_UPSTREAM_RPS", 0),
		},

		Watermark: WatermarkConfig{
			Enabled:       getbool("WATERMARK_ENABLED", true),
			LogoPath:      getenv("WATERMARK_LOGO_PATH", "assets/logo.png"),
			WidthFraction: getfloat("WATERMARK_WIDTH_FRACTION", 0.4),
			MaxWidth:      getint("WATERMARK_MAX_WIDTH", 100),
			Padding:       getint("WATERMARK_PADDING", 10),
			Opacity:       getfloat("WATERMARK_OPACITY", 0.7),
		},

		Storage: StorageConfig{
			Driver:        strings.ToLower(getenv("STORAGE_DRIVER", "filesystem")),
			Endpoint:      getenv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey:     getenv("STORAGE_ACCESS_KEY", ""),
			SecretKey:     getenv("STORAGE_SECRET_KEY", ""),
			Bucket:        getenv("STORAGE_BUCKET", "genart"),
			Region:        getenv("STORAGE_REGION", "us-east-1"),
			UseSSL:        getbool("STORAGE_USE_SSL", false),
			PublicBaseURL: strings.TrimRight(getenv("STORAGE_PUBLIC_BASE_URL", ""), "/"),
			Folder:        strings.Trim(getenv("STORAGE_FOLDER", "generated"), "/"),
			LocalPath:     getenv("STORAGE_LOCAL_PATH", "data/assets"),
		},

		Redis: RedisConfig{
			Addr:      getenv("REDIS_ADDR", ""),
			Password:  getenv("REDIS_PASSWORD", ""),
			DB:        getint("REDIS_DB", 0),
			CursorKey: getenv("REDIS_CURSOR_KEY", "genart:keypool:cursor"),
		},

		Jobs: JobsConfig{
			WorkDir:         getenv("WORK_DIR", os.TempDir()),
			JanitorSchedule: getenv("JANITOR_SCHEDULE", "0 */10 * * * *"),
			ScratchTTL:      getdur("SCRATCH_TTL", time.Hour),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-genart-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.DB.Driver == "postgresql" {
		cfg.DB.Driver = "postgres"
	}
	if cfg.Storage.Driver == "s3" {
		cfg.Storage.Driver = "minio"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, postgres")
	}
	if strings.TrimSpace(cfg.Generation.BaseURL) == "" {
		return cfg, errors.New("GENERATION_BASE_URL must not be empty")
	}
	if cfg.Generation.SampleCount < 1 {
		return cfg, errors.New("GENERATION_SAMPLE_COUNT must be >= 1")
	}
	if cfg.Generation.MaxAttempts < 0 {
		return cfg, errors.New("GENERATION_MAX_ATTEMPTS must be >= 0")
	}
	if cfg.Generation.RequestTimeout <= 0 {
		return cfg, errors.New("GENERATION_TIMEOUT must be > 0")
	}
	if cfg.Generation.ShortDelay < 0 || cfg.Generation.LongDelay < 0 {
		return cfg, errors.New("GENERATION_SHORT_DELAY and GENERATION_LONG_DELAY must be >= 0")
	}
	if cfg.Generation.UpstreamRPS < 0 {
		return cfg, errors.New("GENERATION_UPSTREAM_RPS must be >= 0")
	}
	if cfg.Watermark.WidthFraction <= 0 || cfg.Watermark.WidthFraction > 1 {
		return cfg, errors.New("WATERMARK_WIDTH_FRACTION must be in (0,1]")
	}
	if cfg.Watermark.MaxWidth < 1 {
		return cfg, errors.New("WATERMARK_MAX_WIDTH must be >= 1")
	}
	if cfg.Watermark.Padding < 0 {
		return cfg, errors.New("WATERMARK_PADDING must be >= 0")
	}
	if cfg.Watermark.Opacity < 0 || cfg.Watermark.Opacity > 1 {
		return cfg, errors.New("WATERMARK_OPACITY must be in [0,1]")
	}
	if cfg.Watermark.Enabled && strings.TrimSpace(cfg.Watermark.LogoPath) == "" {
		return cfg, errors.New("WATERMARK_LOGO_PATH must not be empty when watermarking is enabled")
	}
	switch cfg.Storage.Driver {
	case "filesystem":
		if strings.TrimSpace(cfg.Storage.LocalPath) == "" {
			return cfg, errors.New("STORAGE_LOCAL_PATH must not be empty")
		}
	case "minio":
		if strings.TrimSpace(cfg.Storage.Endpoint) == "" || strings.TrimSpace(cfg.Storage.Bucket) == "" {
			return cfg, errors.New("STORAGE_ENDPOINT and STORAGE_BUCKET are required when STORAGE_DRIVER=minio")
		}
	default:
		return cfg, errors.New("STORAGE_DRIVER must be one of: filesystem, minio")
	}
	if strings.TrimSpace(cfg.Jobs.WorkDir) == "" {
		return cfg, errors.New("WORK_DIR must not be empty")
	}
	if cfg.Jobs.ScratchTTL <= 0 {
		return cfg, errors.New("SCRATCH_TTL must be > 0")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// loadAPIKeys merges GENERATION_API_KEYS with GENERATION_API_KEY_1..N,
// stopping at the first missing index. Duplicates are dropped, order kept.
func loadAPIKeys() []string {
	keys := splitCSV(getenv("GENERATION_API_KEYS", ""))
	for i := 1; ; i++ {
		v, ok := os.LookupEnv(fmt.Sprintf("GENERATION_API_KEY_%d", i))
		if !ok || strings.TrimSpace(v) == "" {
			break
		}
		keys = append(keys, strings.TrimSpace(v))
	}
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
