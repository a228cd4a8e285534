package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/hugopriorizen/Base/internal/command"
	"github.com/hugopriorizen/Base/internal/core/port"
	"github.com/hugopriorizen/Base/internal/infra/config"
	"github.com/hugopriorizen/Base/internal/infra/database"
	kafkainfra "github.com/hugopriorizen/Base/internal/infra/kafka"
	"github.com/hugopriorizen/Base/internal/infra/logger"
	redisinfra "github.com/hugopriorizen/Base/internal/infra/redis"
	"github.com/hugopriorizen/Base/internal/infra/security"
	"github.com/hugopriorizen/Base/internal/infra/telemetry"
	"github.com/hugopriorizen/Base/internal/repository/lifecycle"
	"github.com/hugopriorizen/Base/internal/repository/memory"
	postgresrepo "github.com/hugopriorizen/Base/internal/repository/postgres"
	redisrepo "github.com/hugopriorizen/Base/internal/repository/redis"
	"github.com/hugopriorizen/Base/internal/transport/http/middleware"
	"github.com/hugopriorizen/Base/internal/transport/http/routes"
	"github.com/hugopriorizen/Base/internal/usecase"
)

// Application owns the HTTP server and every connection opened during startup.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	tracer   *telemetry.TracerProvider
}

type stores struct {
	accounts port.AccountRepository
	roles    port.RoleRepository
}

// New wires configuration into stores, services and the HTTP engine.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}
	if err := a.wire(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	var tracerProvider trace.TracerProvider
	if cfg.Telemetry.TracingEnabled {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.tracer = tp
		tracerProvider = tp.TracerProvider()
	}

	interceptor := lifecycle.NewInterceptor()
	st, err := a.openStores(ctx, interceptor)
	if err != nil {
		return err
	}

	hasher, err := security.NewArgon2Hasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return fmt.Errorf("configure argon2: %w", err)
	}

	tokens := cfg.Identity.Tokens
	codec, err := security.NewActionTokenCodec(security.ActionTokenConfig{
		Secret:          []byte(tokens.Secret),
		Issuer:          tokens.Issuer,
		ResetTTL:        tokens.ResetTTL,
		ConfirmationTTL: tokens.ConfirmationTTL,
	})
	if err != nil {
		return fmt.Errorf("init action tokens: %w", err)
	}

	sessions, err := security.NewSessionTokenIssuer([]byte(cfg.Session.Secret), cfg.Session.Issuer, cfg.Session.Audience)
	if err != nil {
		return fmt.Errorf("init session tokens: %w", err)
	}

	pp := cfg.Identity.PasswordPolicy
	policy := security.NewPasswordPolicy(security.PasswordPolicyConfig{
		MinLength:              pp.MinLength,
		RequireUppercase:       pp.RequireUppercase,
		RequireLowercase:       pp.RequireLowercase,
		RequireDigit:           pp.RequireDigit,
		RequireNonAlphanumeric: pp.RequireNonAlphanumeric,
		MinStrengthScore:       pp.MinStrengthScore,
	})

	identityCfg := usecase.IdentityConfigFromSettings(cfg.Identity)

	registry := prometheus.DefaultRegisterer
	identityMetrics, err := telemetry.NewIdentityMetrics(registry)
	if err != nil {
		return fmt.Errorf("init identity metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{Registerer: registry})
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	credentials := usecase.NewCredentialService(st.accounts, hasher, policy, codec, identityCfg.Lockout, log)
	identity := usecase.NewIdentityService(st.accounts, st.roles, credentials, identityCfg, log).
		WithEvents(a.eventPublisher()).
		WithMetrics(identityMetrics)

	if seed := cfg.Identity.Seed; seed.Enabled {
		seedCfg := usecase.DefaultSeedConfig()
		seedCfg.AdminUserName = seed.AdminUserName
		seedCfg.AdminEmail = seed.AdminEmail
		seedCfg.AdminPassword = seed.AdminPassword
		if err := usecase.NewSeeder(st.accounts, st.roles, credentials, log).Seed(ctx, seedCfg); err != nil {
			return fmt.Errorf("seed identity data: %w", err)
		}
	}

	deps := routes.Dependencies{
		Config:         cfg,
		Logger:         log,
		Commands:       command.NewHandlers(identity, command.NewValidator(), log),
		Sessions:       sessions,
		Metrics:        httpMetrics,
		Gatherer:       prometheus.DefaultGatherer,
		TracerProvider: tracerProvider,
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if limiter := a.rateLimiter(ctx); limiter != nil {
		deps.RateLimiter = limiter.WithMetrics(httpMetrics)
		deps.Cache = a.redis
	}

	a.engine = routes.Register(deps)
	return nil
}

func (a *Application) openStores(ctx context.Context, interceptor *lifecycle.Interceptor) (stores, error) {
	cfg := a.cfg
	if cfg.Storage.Driver == config.StorageDriverMemory {
		a.logger.Warn("using in-memory account store; data is lost on restart")
		roles := memory.NewRoleRepository()
		return stores{
			accounts: memory.NewAccountRepository(interceptor).WithRoles(roles),
			roles:    roles,
		}, nil
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, a.logger)
	if err != nil {
		return stores{}, fmt.Errorf("init postgres: %w", err)
	}
	a.pool = pool

	if cfg.Storage.EnsureSchema {
		if err := postgresrepo.EnsureSchema(ctx, pool); err != nil {
			return stores{}, fmt.Errorf("ensure schema: %w", err)
		}
	}

	repos := postgresrepo.NewRepositories(pool, interceptor)
	return stores{accounts: repos.Accounts, roles: repos.Roles}, nil
}

// eventPublisher falls back to the logging stub when Kafka is disabled or unreachable.
func (a *Application) eventPublisher() port.EventPublisher {
	cfg, log := a.cfg, a.logger
	if !cfg.Kafka.Enabled || len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka disabled, using stub publisher")
		return kafkainfra.NewStubPublisher(log)
	}

	producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
	if err != nil {
		log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
		return kafkainfra.NewStubPublisher(log)
	}
	a.producer = producer
	log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
	return kafkainfra.NewEventPublisher(producer, cfg.App, log)
}

// rateLimiter returns nil when Redis is disabled or unreachable; routes then run unthrottled.
func (a *Application) rateLimiter(ctx context.Context) *middleware.RateLimiter {
	cfg, log := a.cfg, a.logger
	if !cfg.Redis.Enabled {
		return nil
	}

	client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
		return nil
	}
	a.redis = client

	window := cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}
	store := redisrepo.NewRateLimitRepository(client.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: client.RateLimitPrefix(),
		TTL:       window * 2,
	})
	return middleware.NewRateLimiter(store, log)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("storage", a.cfg.Storage.Driver),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-ctx.Done():
		err := srv.Shutdown(shutdownCtx)
		a.close(shutdownCtx)
		if err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		a.close(shutdownCtx)
		return err
	}
}

func (a *Application) close(ctx context.Context) {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close kafka producer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown tracer provider", zap.Error(err))
		}
	}
}
