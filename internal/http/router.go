// Package httpapi wires the admin API (Gin) to the vote handlers. It owns the
// middleware chain: tracing, correlation IDs, access logging, panic recovery,
// compression, metrics, rate limiting and CORS.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbourn/vote-initiate-bot/internal/config"
	"github.com/tbourn/vote-initiate-bot/internal/http/handlers"
	"github.com/tbourn/vote-initiate-bot/internal/http/middleware"
)

// NewRouter returns an engine in cfg.GinMode with all routes registered.
func NewRouter(votes handlers.VoteService, cfg config.Config) *gin.Engine {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	r := gin.New()
	RegisterRoutes(r, votes, cfg)
	return r
}

// RegisterRoutes attaches middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. AccessLog
//  4. Recovery (after the logger so panics carry request context)
//  5. Gzip (skips /metrics, which promhttp compresses itself)
//  6. Metrics
//  7. Rate limiter per IP
//  8. CORS
func RegisterRoutes(r *gin.Engine, votes handlers.VoteService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(middleware.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP)
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS)))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(votes)
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/votes", h.ListVotes)
		api.GET("/votes/:id", h.GetVote)
		api.POST("/votes/:id/recheck", h.RecheckVote)
	}
}

// corsConfig allows every origin when none are configured. Credentials are
// never allowed.
func corsConfig(c config.CORSConfig) cors.Config {
	out := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		out.AllowAllOrigins = true
	} else {
		out.AllowOrigins = c.AllowedOrigins
	}
	return out
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
