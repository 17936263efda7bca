package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

// --- MustLoad ---

func TestMustLoad_PanicsOnInvalidConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "verbose") // invalid -> Load() error
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("MustLoad should panic on invalid config")
		}
	}()
	_ = MustLoad()
}

// --- Load success + normalization + parsing ---

func TestLoad_Success_DefaultsAndOverrides(t *testing.T) {
	// Server timeouts / sizes (valid)
	t.Setenv("PORT", "8088")
	t.Setenv("READ_TIMEOUT", "2s")
	t.Setenv("READ_HEADER_TIMEOUT", "1s")
	t.Setenv("WRITE_TIMEOUT", "3s")
	t.Setenv("IDLE_TIMEOUT", "4s")
	t.Setenv("MAX_HEADER_BYTES", "8192")
	t.Setenv("GIN_MODE", "weird") // will normalize to "release"

	// Logging / Docs
	t.Setenv("LOG_LEVEL", "warning") // will normalize to "warn"
	t.Setenv("LOG_PRETTY", "yes")
	t.Setenv("SWAGGER_ENABLED", "on")
	t.Setenv("API_BASE_PATH", "api/") // no leading slash + trailing slash -> "/api"

	// Persistence
	t.Setenv("DB_DRIVER", "postgresql") // alias -> "postgres"
	t.Setenv("DATABASE_URL", "postgres://u:p@db/genart")

	// Generation
	t.Setenv("GENERATION_API_KEYS", " k1 , ,k2 ")
	t.Setenv("GENERATION_API_KEY_1", "k3")
	t.Setenv("GENERATION_API_KEY_2", "k1") // duplicate dropped
	t.Setenv("GENERATION_API_KEY_4", "k9") // gap at 3 -> ignored
	t.Setenv("GENERATION_MAX_ATTEMPTS", "x") // -> default 0
	t.Setenv("GENERATION_SHORT_DELAY", "10ms")
	t.Setenv("GENERATION_UPSTREAM_RPS", "2.5")

	// Watermark
	t.Setenv("WATERMARK_ENABLED", "off")
	t.Setenv("WATERMARK_WIDTH_FRACTION", "0.1")
	t.Setenv("WATERMARK_MAX_WIDTH", "50")

	// Storage
	t.Setenv("STORAGE_DRIVER", "S3") // alias -> "minio"
	t.Setenv("STORAGE_PUBLIC_BASE_URL", "https://cdn.example.com/")
	t.Setenv("STORAGE_FOLDER", "/nft/")

	// Web protection
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.com , , http://b ")
	t.Setenv("ENABLE_HSTS", "TRUE")
	t.Setenv("HSTS_MAX_AGE", "24h")

	// Idempotency
	t.Setenv("IDEMPOTENCY_TTL", "48h")

	// OTEL
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "0")
	t.Setenv("OTEL_SERVICE_NAME", "svc")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.75")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Server
	if cfg.Port != "8088" ||
		cfg.ReadTimeout != 2*time.Second ||
		cfg.ReadHeaderTimeout != 1*time.Second ||
		cfg.WriteTimeout != 3*time.Second ||
		cfg.IdleTimeout != 4*time.Second ||
		cfg.MaxHeaderBytes != 8192 ||
		cfg.GinMode != "release" {
		t.Fatalf("server fields unexpected: %+v", cfg)
	}

	// Logging / Docs
	if cfg.LogLevel != "warn" || !cfg.LogPretty || !cfg.SwaggerEnabled || cfg.APIBasePath != "/api" {
		t.Fatalf("logging/docs unexpected: %+v", cfg)
	}

	// Persistence
	if cfg.DB.Driver != "postgres" || cfg.DB.DSN != "postgres://u:p@db/genart" {
		t.Fatalf("db unexpected: %+v", cfg.DB)
	}

	// Generation
	g := cfg.Generation
	if !reflect.DeepEqual(g.APIKeys, []string{"k1", "k2", "k3"}) {
		t.Fatalf("api keys unexpected: %#v", g.APIKeys)
	}
	if g.MaxAttempts != 0 || g.ShortDelay != 10*time.Millisecond || g.LongDelay != 5*time.Second || g.UpstreamRPS != 2.5 {
		t.Fatalf("generation unexpected: %+v", g)
	}
	if g.SampleCount != 1 || g.PersonGeneration != "allow_adult" || g.AspectRatio != "1:1" {
		t.Fatalf("generation parameters unexpected: %+v", g)
	}

	// Watermark
	w := cfg.Watermark
	if w.Enabled || w.WidthFraction != 0.1 || w.MaxWidth != 50 || w.Padding != 10 || w.Opacity != 0.7 {
		t.Fatalf("watermark unexpected: %+v", w)
	}

	// Storage
	if cfg.Storage.Driver != "minio" || cfg.Storage.PublicBaseURL != "https://cdn.example.com" || cfg.Storage.Folder != "nft" {
		t.Fatalf("storage unexpected: %+v", cfg.Storage)
	}

	// Web protection
	if !reflect.DeepEqual(cfg.CORS.AllowedOrigins, []string{"https://a.com", "http://b"}) {
		t.Fatalf("cors origins unexpected: %#v", cfg.CORS.AllowedOrigins)
	}
	if !cfg.Security.EnableHSTS || cfg.Security.HSTSMaxAge != 24*time.Hour {
		t.Fatalf("security unexpected: %+v", cfg.Security)
	}

	// Idempotency
	if cfg.IdempotencyTTL != 48*time.Hour {
		t.Fatalf("idempotency ttl unexpected: %v", cfg.IdempotencyTTL)
	}

	// OTEL
	if !cfg.OTEL.Enabled || cfg.OTEL.Endpoint != "otel:4317" || cfg.OTEL.Insecure || cfg.OTEL.ServiceName != "svc" || cfg.OTEL.SampleRatio != 0.75 {
		t.Fatalf("otel unexpected: %+v", cfg.OTEL)
	}
}

// --- Load validations (each case triggers exactly one validation error) ---

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"invalid LOG_LEVEL", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
		{"empty PORT via spaces", map[string]string{"PORT": "   "}, "PORT must not be empty"},
		{"non-positive timeouts", map[string]string{"READ_TIMEOUT": "0s"}, "timeouts must be positive"},
		{"max header bytes <= 0", map[string]string{"MAX_HEADER_BYTES": "0"}, "MAX_HEADER_BYTES"},
		{"empty DB_PATH", map[string]string{"DB_PATH": "   "}, "DB_PATH must not be empty"},
		{"postgres without DSN", map[string]string{"DB_DRIVER": "postgres"}, "DATABASE_URL"},
		{"unknown DB_DRIVER", map[string]string{"DB_DRIVER": "mongo"}, "DB_DRIVER"},
		{"sample count < 1", map[string]string{"GENERATION_SAMPLE_COUNT": "0"}, "GENERATION_SAMPLE_COUNT"},
		{"max attempts negative", map[string]string{"GENERATION_MAX_ATTEMPTS": "-1"}, "GENERATION_MAX_ATTEMPTS"},
		{"generation timeout", map[string]string{"GENERATION_TIMEOUT": "0s"}, "GENERATION_TIMEOUT"},
		{"negative delay", map[string]string{"GENERATION_LONG_DELAY": "-1s"}, "GENERATION_LONG_DELAY"},
		{"negative rps", map[string]string{"GENERATION_UPSTREAM_RPS": "-2"}, "GENERATION_UPSTREAM_RPS"},
		{"width fraction", map[string]string{"WATERMARK_WIDTH_FRACTION": "1.5"}, "WATERMARK_WIDTH_FRACTION"},
		{"max width", map[string]string{"WATERMARK_MAX_WIDTH": "0"}, "WATERMARK_MAX_WIDTH"},
		{"padding", map[string]string{"WATERMARK_PADDING": "-3"}, "WATERMARK_PADDING"},
		{"opacity", map[string]string{"WATERMARK_OPACITY": "2"}, "WATERMARK_OPACITY"},
		{"unknown storage", map[string]string{"STORAGE_DRIVER": "ftp"}, "STORAGE_DRIVER"},
		{"minio without bucket", map[string]string{"STORAGE_DRIVER": "minio", "STORAGE_BUCKET": " "}, "STORAGE_BUCKET"},
		{"scratch ttl", map[string]string{"SCRATCH_TTL": "0s"}, "SCRATCH_TTL"},
		{"hsts max age negative", map[string]string{"HSTS_MAX_AGE": "-1s"}, "HSTS_MAX_AGE"},
		{"idempotency ttl non-positive", map[string]string{"IDEMPOTENCY_TTL": "0s"}, "IDEMPOTENCY_TTL"},
		{"otel sample ratio out of range", map[string]string{"OTEL_TRACES_SAMPLER_ARG": "1.5"}, "OTEL_TRACES_SAMPLER_ARG"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if tc.want != "" && !containsErr(err, tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestLoadAPIKeys_EnumeratedOnly(t *testing.T) {
	t.Setenv("GENERATION_API_KEY_1", "a")
	t.Setenv("GENERATION_API_KEY_2", " b ")
	t.Setenv("GENERATION_API_KEY_3", "")
	t.Setenv("GENERATION_API_KEY_4", "d")

	if got := loadAPIKeys(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("loadAPIKeys = %#v", got)
	}
}

// --- helpers ---

func TestHelpers_getenv(t *testing.T) {
	t.Setenv("X_EMPTY", "")
	if getenv("X_EMPTY", "d") != "d" {
		t.Fatalf("getenv should fall back to default on empty var")
	}
	t.Setenv("X_SET", "val")
	if getenv("X_SET", "d") != "val" {
		t.Fatalf("getenv should read set value")
	}
}

func TestHelpers_getfloat_getint_getdur(t *testing.T) {
	t.Setenv("F_VALID", "3.14")
	if getfloat("F_VALID", 0) != 3.14 {
		t.Fatalf("getfloat parse failed")
	}
	t.Setenv("F_BAD", "nope")
	if getfloat("F_BAD", 1.23) != 1.23 {
		t.Fatalf("getfloat default on bad parse failed")
	}

	t.Setenv("I_VALID", "42")
	if getint("I_VALID", 0) != 42 {
		t.Fatalf("getint parse failed")
	}
	t.Setenv("I_BAD", "x")
	if getint("I_BAD", 7) != 7 {
		t.Fatalf("getint default on bad parse failed")
	}

	t.Setenv("D_VALID", "150ms")
	if getdur("D_VALID", time.Second) != 150*time.Millisecond {
		t.Fatalf("getdur parse failed")
	}
	t.Setenv("D_BAD", "zzz")
	if getdur("D_BAD", 2*time.Second) != 2*time.Second {
		t.Fatalf("getdur default on bad parse failed")
	}
}

func TestHelpers_getbool(t *testing.T) {
	trueVals := []string{"1", "true", "TRUE", " yes ", "Y", "on", "On"}
	for i, v := range trueVals {
		k := "B_T_" + config_strconv(i)
		t.Setenv(k, v)
		if !getbool(k, false) {
			t.Fatalf("getbool(%q) = false; want true", v)
		}
	}
	falseVals := []string{"0", "false", "FALSE", " no ", "N", "off", "Off"}
	for i, v := range falseVals {
		k := "B_F_" + config_strconv(i)
		t.Setenv(k, v)
		if getbool(k, true) {
			t.Fatalf("getbool(%q) = true; want false", v)
		}
	}
	// default on unset/empty
	t.Setenv("B_EMPTY", "")
	if !getbool("B_EMPTY", true) || getbool("B_EMPTY", false) {
		t.Fatalf("getbool default behavior unexpected")
	}
}

func TestHelpers_splitCSV_and_normalizeBasePath(t *testing.T) {
	if out := splitCSV(""); out != nil {
		t.Fatalf("splitCSV empty should return nil")
	}
	in := " a, ,b ,  c  ,"
	want := []string{"a", "b", "c"}
	if got := splitCSV(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("splitCSV mismatch: got %#v want %#v", got, want)
	}

	// normalizeBasePath
	if normalizeBasePath("") != "/" {
		t.Fatalf("normalizeBasePath empty -> '/' failed")
	}
	if normalizeBasePath("v1") != "/v1" {
		t.Fatalf("normalizeBasePath missing leading slash failed")
	}
	if normalizeBasePath("/v1/") != "/v1" {
		t.Fatalf("normalizeBasePath trailing slash trim failed")
	}
	if normalizeBasePath(" / ") != "/" {
		t.Fatalf("normalizeBasePath whitespace failed")
	}
}

// small helper (avoid fmt just for ints)
func config_strconv(i int) string { return string('a' + rune(i)) }

// Ensure tests don't inherit env from the shell.
func TestMain(m *testing.M) {
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(k, "GENERATION_") || strings.HasPrefix(k, "WATERMARK_") ||
			strings.HasPrefix(k, "STORAGE_") || strings.HasPrefix(k, "DB_") || k == "PORT" || k == "DATABASE_URL" {
			os.Unsetenv(k)
		}
	}
	os.Exit(m.Run())
}

// containsErr reports whether err's message contains the given substring.
func containsErr(err error, want string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), want)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.APIBasePath != "/api" {
		t.Fatalf("API_BASE_PATH default expected '/api', got %q", cfg.APIBasePath)
	}
	if cfg.DB.Driver != "sqlite" || cfg.Storage.Driver != "filesystem" {
		t.Fatalf("driver defaults unexpected: db=%q storage=%q", cfg.DB.Driver, cfg.Storage.Driver)
	}
	if !cfg.Watermark.Enabled || cfg.Watermark.WidthFraction != 0.4 || cfg.Watermark.MaxWidth != 100 {
		t.Fatalf("watermark defaults unexpected: %+v", cfg.Watermark)
	}
	if cfg.Generation.ShortDelay != time.Second || cfg.Generation.LongDelay != 5*time.Second {
		t.Fatalf("delay defaults unexpected: %+v", cfg.Generation)
	}
	if cfg.Redis.Addr != "" {
		t.Fatalf("redis should be disabled by default, got %q", cfg.Redis.Addr)
	}
}

func TestMustLoad_Success_NoPanic(t *testing.T) {
	// No special env needed; defaults are valid.
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("MustLoad should not panic on valid defaults, got: %v", r)
		}
	}()
	cfg := MustLoad()
	if cfg.APIBasePath == "" {
		t.Fatalf("unexpected empty config from MustLoad")
	}
}
