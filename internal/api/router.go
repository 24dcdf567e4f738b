// Package api wires together all HTTP routes for the entitlement service.
//
// Route grouping philosophy:
//   - Player routes (/api/v1/access/, /vouchers/, /invites, /passes/) require a
//     player JWT (or the service key) plus the matching scope.
//   - Platform routes (/api/v1/hooks/, /grants/) additionally require
//     service-key authentication. A player token can never reach them, no
//     matter what scopes it carries.
//   - /health, /ready and /version are unauthenticated probes.
package api

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/flotilla-games/entitlement-service/internal/api/access"
	"github.com/flotilla-games/entitlement-service/internal/api/hooks"
	"github.com/flotilla-games/entitlement-service/internal/api/vouchers"
	"github.com/flotilla-games/entitlement-service/internal/auth"
	"github.com/flotilla-games/entitlement-service/internal/config"
	"github.com/flotilla-games/entitlement-service/internal/db/repositories"
	"github.com/flotilla-games/entitlement-service/internal/economy"
	"github.com/flotilla-games/entitlement-service/internal/jobs"
	"github.com/flotilla-games/entitlement-service/internal/middleware"
	"github.com/flotilla-games/entitlement-service/internal/policy"
	"github.com/flotilla-games/entitlement-service/internal/safego"
)

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	statsJob     *jobs.VoucherStatsJob
	policyCache  *policy.Cache
	redisClient  *redis.Client
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines and closes shared clients. It should
// be called after the HTTP server has been shut down so that in-flight requests
// are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.statsJob != nil {
		bg.statsJob.Stop()
	}
	if bg.policyCache != nil {
		if err := bg.policyCache.Close(); err != nil {
			slog.Warn("policy cache close failed", "error", err)
		}
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.redisClient != nil {
		if err := bg.redisClient.Close(); err != nil {
			slog.Warn("redis close failed", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Load the per-era access policy table. The cache watches the file and
	// re-reads on change, so pricing edits land without a restart.
	policyCache, err := policy.NewCache(cfg.Economy.PolicyFile, cfg.Economy.PolicyTTL, policy.UnitPolicy{
		PassesRequired: cfg.Economy.DefaultPassesRequired,
		Exclusive:      cfg.Economy.DefaultExclusive,
	})
	if err != nil {
		log.Fatalf("Failed to load access policy: %v", err)
	}
	if cfg.Economy.PolicyFile != "" {
		log.Printf("Access policy loaded from %s", cfg.Economy.PolicyFile)
	}

	// Optional Redis: resolve-decision cache plus the cross-replica rate
	// limiter. Everything downstream is nil-safe, so a deployment without
	// Redis just loses the cache and falls back to in-process limiting.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		log.Printf("Redis resolve cache enabled (%s)", cfg.Redis.Addr)
	}

	// Initialize repositories
	entitlementRepo := repositories.NewEntitlementRepository(db)

	// Wrap *sql.DB with sqlx for the voucher repository
	sqlxDB := sqlx.NewDb(db, "postgres")
	voucherRepo := repositories.NewVoucherRepository(sqlxDB)

	// Economy services
	resolveCache := economy.NewResolveCache(rdb, cfg.Economy.ResolveCacheTTL)
	resolver := economy.NewResolver(entitlementRepo, policyCache, resolveCache)
	consumer := economy.NewConsumer(resolver, entitlementRepo, resolveCache)
	lifecycle := economy.NewLifecycle(voucherRepo, resolveCache)
	referral := economy.NewReferral(voucherRepo, lifecycle)

	// Handlers
	accessHandler := access.NewHandler(resolver, consumer, entitlementRepo)
	voucherHandler := vouchers.NewHandler(lifecycle, voucherRepo, vouchers.InviteSettings{
		PassGrant:   cfg.Economy.InvitePassGrant,
		SignupBonus: cfg.Economy.InviteSignupBonus,
	})
	hooksHandler := hooks.NewHandler(referral, entitlementRepo, resolveCache)

	// Start the invitation stats job
	statsJob := jobs.NewVoucherStatsJob(voucherRepo, cfg.Economy.StatsInterval)
	safego.Go(func() { statsJob.Start(context.Background()) })

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// Readiness check endpoint (includes Redis probe when configured)
	router.GET("/ready", readinessHandler(db, rdb))

	// API version
	router.GET("/version", versionHandler())

	// Rate limit budgets come from config; zero values keep the defaults.
	generalLimit := middleware.DefaultRateLimitConfig()
	if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
		generalLimit.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
	}
	if cfg.Security.RateLimiting.Burst > 0 {
		generalLimit.BurstSize = cfg.Security.RateLimiting.Burst
	}
	redeemLimit := middleware.RedeemRateLimitConfig()
	if cfg.Security.RateLimiting.RedeemPerMinute > 0 {
		redeemLimit.RequestsPerMinute = cfg.Security.RateLimiting.RedeemPerMinute
	}

	bg := &BackgroundServices{
		statsJob:    statsJob,
		policyCache: policyCache,
		redisClient: rdb,
	}

	// rateLimit picks the shared Redis limiter when Redis is configured so the
	// budget holds across replicas, and the in-process bucket otherwise. A nil
	// return means rate limiting is disabled.
	rateLimit := func(limitCfg middleware.RateLimitConfig) gin.HandlerFunc {
		if !cfg.Security.RateLimiting.Enabled {
			return nil
		}
		if rdb != nil {
			return middleware.RedisRateLimitMiddleware(rdb, limitCfg)
		}
		limiter := middleware.NewRateLimiter(limitCfg)
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		return middleware.RateLimitMiddleware(limiter)
	}

	apiV1 := router.Group("/api/v1")
	{
		// All API routes require authentication: a player JWT or the service key.
		authenticated := apiV1.Group("")
		authenticated.Use(middleware.AuthMiddleware(cfg))
		if mw := rateLimit(generalLimit); mw != nil {
			authenticated.Use(mw)
		}
		{
			// Access resolution and consumption
			authenticated.GET("/access/:unit",
				middleware.RequireScope(auth.ScopeAccessPlay),
				accessHandler.Resolve)
			authenticated.POST("/access/:unit/consume",
				middleware.RequireScope(auth.ScopeAccessPlay),
				accessHandler.Consume)
			authenticated.GET("/passes/balance",
				middleware.RequireScope(auth.ScopeAccessPlay),
				accessHandler.Balance)

			// Voucher lifecycle
			authenticated.POST("/vouchers",
				middleware.RequireScope(auth.ScopeVouchersIssue),
				voucherHandler.Issue)
			authenticated.GET("/vouchers",
				middleware.RequireScope(auth.ScopeVouchersAdmin),
				voucherHandler.List)
			authenticated.GET("/vouchers/:code",
				middleware.RequireScope(auth.ScopeVouchersRedeem),
				voucherHandler.Preflight)

			// Redemption carries its own, stricter budget on top of the
			// group-level limit.
			redeemHandlers := []gin.HandlerFunc{}
			if mw := rateLimit(redeemLimit); mw != nil {
				redeemHandlers = append(redeemHandlers, mw)
			}
			redeemHandlers = append(redeemHandlers,
				middleware.RequireScope(auth.ScopeVouchersRedeem),
				voucherHandler.Redeem)
			authenticated.POST("/vouchers/redeem", redeemHandlers...)

			// Player invitations
			authenticated.POST("/invites",
				middleware.RequireScope(auth.ScopeVouchersIssue),
				voucherHandler.Invite)

			// Platform hooks: service key only, regardless of token scopes
			system := authenticated.Group("")
			system.Use(middleware.RequireSystemCaller())
			{
				system.POST("/hooks/account-created",
					middleware.RequireScope(auth.ScopeSystemHooks),
					hooksHandler.AccountCreated)
				system.POST("/grants/purchase",
					middleware.RequireScope(auth.ScopeGrantsRecord),
					hooksHandler.RecordPurchase)
			}
		}
	}

	return router, bg
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks database and, when configured, Redis connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also pings Redis when it is
// configured: without the resolve cache the service still works, but a
// deployment that expects Redis should not go ready while it is unreachable.
func readinessHandler(db *sql.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the current service and API versions.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "service, version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":     "entitlement-service",
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
	slog.LogAttrs(
		c.Request.Context(),
		slog.LevelInfo,
		"http request",
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", middleware.RequestID(c)),
		slog.String("user_agent", c.Request.UserAgent()),
	)
}

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}
