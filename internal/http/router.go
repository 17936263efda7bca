// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers and idempotency.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Browser-friendly CORS, caching and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-genart-backend/docs"
	"github.com/tbourn/go-genart-backend/internal/config"
	"github.com/tbourn/go-genart-backend/internal/http/handlers"
	"github.com/tbourn/go-genart-backend/internal/http/middleware"
	"github.com/tbourn/go-genart-backend/internal/prompt"
	"github.com/tbourn/go-genart-backend/internal/repo"
	"github.com/tbourn/go-genart-backend/internal/services"
	"github.com/tbourn/go-genart-backend/internal/storage"
	"github.com/tbourn/go-genart-backend/internal/watermark"
)

// maxBodyBytes caps request bodies; every endpoint takes small JSON.
const maxBodyBytes = 1 << 20

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency, CORS
// and security headers, health and metrics endpoints, local asset serving,
// optional Swagger UI, and then mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RequestLogger: request-scoped logger on gin and request contexts
//  4. RedactingLogger: access logs with PII and credential scrubbing
//  5. Recovery: capture panics after loggers
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator
//  9. Gzip, CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, gen services.ImageGenerator, store storage.AssetStore, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2-3) Correlate requests and logs
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())

	// 4) Structured access logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit
	r.Use(limitBody(maxBodyBytes))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation; replays are looked up per route scope
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Compression for JSON; images are already compressed
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedExtensions([]string{".png", ".jpg", ".jpeg", ".webp", ".gif"}),
		gzip.WithExcludedPaths([]string{"/metrics"}),
	))

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderIdempotencyReplayed}

	// CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	apiBase := cfg.APIBasePath // e.g. "/api"
	galleryPath := joinPath(apiBase, "/gallery")

	// Security headers; the gallery and local assets stay cacheable so
	// ETags and browser caches work.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:           cfg.Security.EnableHSTS,
		HSTSMaxAge:           cfg.Security.HSTSMaxAge,
		NoStore:              true,
		CacheablePrefixes:    []string{galleryPath, storage.DefaultAssetsRoute},
		EnablePolicy:         true,
		CrossOriginResources: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Local assets, when images are not served by an object store or CDN
	if fs, ok := store.(*storage.FileStore); ok && cfg.Storage.PublicBaseURL == "" {
		r.Static(storage.DefaultAssetsRoute, fs.BasePath())
	}

	// API docs
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/generator/store
	genSvc := &services.GenerationService{
		DB:        db,
		Generator: gen,
		Store:     store,
		Prompt:    prompt.Auto(prompt.DefaultStyle),
		Watermark: services.WatermarkOptions{
			Enabled:  cfg.Watermark.Enabled,
			LogoPath: cfg.Watermark.LogoPath,
			Spec: watermark.Spec{
				WidthFraction: cfg.Watermark.WidthFraction,
				MaxWidth:      cfg.Watermark.MaxWidth,
				Padding:       cfg.Watermark.Padding,
				Opacity:       cfg.Watermark.Opacity,
			},
		},
		Folder:         cfg.Storage.Folder,
		WorkDir:        cfg.Jobs.WorkDir,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	gallerySvc := services.NewGalleryService(db)
	newsSvc := &services.NewsletterService{DB: db}
	h := handlers.New(genSvc, gallerySvc, newsSvc)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		api.POST("/generate-image", h.GenerateImage)
		api.GET("/gallery", h.ListGallery)
		api.POST("/newsletter", h.Subscribe)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends p to a base path, treating "/" (or empty) as root.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
