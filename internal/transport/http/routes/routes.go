package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/command"
	"github.com/hugopriorizen/Base/internal/core/domain"
	"github.com/hugopriorizen/Base/internal/infra/config"
	"github.com/hugopriorizen/Base/internal/transport/http/handlers"
	"github.com/hugopriorizen/Base/internal/transport/http/middleware"
)

// Sessions issues and validates the bearer tokens of the HTTP surface.
type Sessions interface {
	handlers.SessionIssuer
	middleware.SessionParser
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config         *config.AppConfig
	Logger         *zap.Logger
	Commands       *command.Handlers
	Sessions       Sessions
	RateLimiter    *middleware.RateLimiter
	Metrics        *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer
	TracerProvider trace.TracerProvider
	Database       DatabaseChecker
	Cache          CacheChecker
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
	if deps.TracerProvider != nil {
		r.Use(middleware.Tracing(deps.TracerProvider))
	}
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	health := handlers.NewHealthHandler()
	if deps.Database != nil {
		health.WithCheck("database", deps.Database.Ping)
	}
	if deps.Cache != nil {
		health.WithCheck("redis", deps.Cache.HealthCheck)
	}

	r.GET("/healthz", health.Status)
	r.GET("/readyz", health.Ready)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if deps.Commands == nil || deps.Sessions == nil {
		return r
	}

	identity := handlers.NewIdentityHandler(deps.Commands, deps.Sessions, handlers.SessionTTL{
		Default:    deps.Config.Session.TTL,
		RememberMe: deps.Config.Session.RememberMeTTL,
	}, deps.Logger)

	auth := middleware.RequireAuth(deps.Sessions, deps.Commands)
	admin := middleware.RequireRole(domain.RoleAdmin)
	limits := deps.Config.RateLimit

	api := r.Group("/api/v1/identity")
	{
		api.POST("/register", with(rateLimit(deps, "register_ip", limits.RegisterMaxAttempts), identity.Register)...)
		api.POST("/login", with(rateLimit(deps, "login_ip", limits.LoginMaxAttempts), identity.Login)...)
		api.POST("/forgot-password", with(rateLimit(deps, "forgot_password_ip", limits.ForgotPasswordMaxAttempts), identity.ForgotPassword)...)
		api.POST("/reset-password", with(rateLimit(deps, "reset_password_ip", limits.ResetPasswordMaxAttempts), identity.ResetPassword)...)
		api.POST("/confirm-email", identity.ConfirmEmail)

		signedIn := api.Group("", auth)
		signedIn.POST("/logout", identity.Logout)
		signedIn.GET("/me", identity.Me)
		signedIn.POST("/change-password", identity.ChangePassword)
		signedIn.PUT("/profile", identity.UpdateProfile)
		signedIn.POST("/confirm-email/resend", with(accountLimit(deps, "resend_confirmation"), identity.ResendConfirmation)...)

		users := api.Group("/users", auth, admin)
		users.GET("", identity.ListUsers)
		users.GET("/:id", identity.GetUser)
		users.DELETE("/:id", identity.DeleteUser)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.NewErrorResponse(c, "route not found"))
	})

	return r
}

func with(limiter gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	if limiter == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{limiter, h}
}

// accountLimit throttles signed-in operations per account, reusing the forgot-password budget.
func accountLimit(deps Dependencies, name string) gin.HandlerFunc {
	limit := deps.Config.RateLimit.ForgotPasswordMaxAttempts
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.AccountIdentifier(),
	})
}

func rateLimit(deps Dependencies, name string, limit int) gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	return deps.RateLimiter.RateLimit(middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	})
}
