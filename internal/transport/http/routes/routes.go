package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/infra/config"
	"github.com/arklim/social-platform-authguard/internal/infra/security"
	"github.com/arklim/social-platform-authguard/internal/transport/http/handlers"
	"github.com/arklim/social-platform-authguard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Passwords *usecase.PasswordService
	Logins    *usecase.LoginService
	Audit     *usecase.AuditService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Tokens      *security.TokenManager
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))
	r.Use(middleware.RequestID())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.Logger(deps.Logger))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	adminMiddleware := middleware.RequireAdmin(deps.Tokens, deps.Config.Auth.AdminRole)

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords)
		loginHandler := handlers.NewLoginHandler(deps.Services.Logins)
		auditHandler := handlers.NewAuditHandler(deps.Services.Audit)

		passwordGroup := api.Group("/password")
		evaluateHandlers := append(buildEvaluateMiddlewares(deps), passwordHandler.Evaluate)
		passwordGroup.POST("/evaluate", evaluateHandlers...)

		api.PUT("/identities/:id/credential", passwordHandler.ChangeCredential)

		loginGroup := api.Group("/login")
		if loginMiddlewares := buildLoginMiddlewares(deps); len(loginMiddlewares) > 0 {
			loginGroup.Use(loginMiddlewares...)
		}
		loginGroup.POST("/check", loginHandler.Check)
		loginGroup.POST("/outcome", loginHandler.Outcome)

		auditGroup := api.Group("/audit")
		auditGroup.Use(adminMiddleware)
		auditGroup.GET("", auditHandler.Query)
		auditGroup.GET("/export", auditHandler.Export)
		auditGroup.POST("/purge", auditHandler.Purge)
	}

	handlers.RegisterSwagger(r)

	return r
}

func buildEvaluateMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.EvaluateMaxAttempts
	if limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "password_evaluate_ip",
		Limit:      limit,
		Window:     rateLimitWindow(deps),
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:       "login_governor_ip",
		Limit:      limit,
		Window:     rateLimitWindow(deps),
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func rateLimitWindow(deps Dependencies) time.Duration {
	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}
	return window
}
