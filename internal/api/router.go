package api

import (
	"safeflag/internal/metrics"
	"safeflag/internal/middleware"
	"safeflag/internal/repository"
	"safeflag/pkg/constraints"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type Handlers struct {
	Flags  *FlagHandler
	Auth   *AuthHandler
	SDK    *SDKKeyHandler
	Stream *StreamHandler
	Health *HealthHandler
}

type RouterOptions struct {
	Tokens            middleware.TokenParser
	SDKKeys           repository.SDKRepository
	Redis             redis.Scripter // nil limits per process only
	RequestsPerSecond int
	AllowedOrigins    []string
}

func RegisterRoutes(h Handlers, opts RouterOptions) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.CorsMiddleware(opts.AllowedOrigins),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	_ = r.SetTrustedProxies(nil)

	r.GET("/health", h.Health.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jwtAuth := middleware.JWTMiddleware(opts.Tokens)
	managerOnly := middleware.RequireRole(constraints.RoleManager)
	writeLimiter := middleware.RateLimitMiddleware(opts.Redis, opts.RequestsPerSecond)

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.GET("/me", jwtAuth, h.Auth.GetProfile)
		auth.POST("/logout", jwtAuth, h.Auth.Logout)

		// SDKs report evaluations without a user session.
		api.GET("/evaluate/:key", h.Flags.Evaluate)
	}

	protected := api.Group("")
	protected.Use(jwtAuth)
	{
		protected.GET("/flags", h.Flags.ListFlags)
		protected.POST("/flags", managerOnly, h.Flags.CreateFlag)
		protected.POST("/flags/:id/audit", writeLimiter, h.Flags.AuditToggle)
		protected.PATCH("/flags/:id/toggle", writeLimiter, h.Flags.Toggle)

		protected.GET("/analytics", h.Flags.Analytics)
		protected.GET("/logs", h.Flags.Logs)
		protected.GET("/environments", h.Flags.Environments)
		protected.POST("/ai/analyze-risk", writeLimiter, h.Flags.AnalyzeRisk)

		protected.POST("/sdk-keys", managerOnly, h.SDK.Create)
		protected.GET("/admin/stream", h.Stream.DashboardWatch)
	}

	stream := r.Group("/v1/stream")
	stream.Use(middleware.SDKAuthMiddleware(opts.SDKKeys))
	{
		stream.GET("/watch", h.Stream.WatchFlags)
		stream.GET("/snapshot", h.Stream.FetchAll)
	}

	return r
}
