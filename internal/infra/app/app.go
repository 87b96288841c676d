package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authguard/internal/core/port"
	"github.com/arklim/social-platform-authguard/internal/infra/config"
	"github.com/arklim/social-platform-authguard/internal/infra/database"
	kafkainfra "github.com/arklim/social-platform-authguard/internal/infra/kafka"
	"github.com/arklim/social-platform-authguard/internal/infra/logger"
	redisinfra "github.com/arklim/social-platform-authguard/internal/infra/redis"
	"github.com/arklim/social-platform-authguard/internal/infra/security"
	"github.com/arklim/social-platform-authguard/internal/infra/telemetry"
	postgresrepo "github.com/arklim/social-platform-authguard/internal/repository/postgres"
	redisrepo "github.com/arklim/social-platform-authguard/internal/repository/redis"
	"github.com/arklim/social-platform-authguard/internal/transport/http/middleware"
	"github.com/arklim/social-platform-authguard/internal/transport/http/routes"
	"github.com/arklim/social-platform-authguard/internal/usecase"
)

type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	tracer   *telemetry.TracerProvider
	consumer *kafkainfra.ChangeStreamConsumer
	producer *kafkainfra.Producer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := telemetry.Attach(ctx, cfg); err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var tracer *telemetry.TracerProvider
	if cfg.Telemetry.OTLPEndpoint != "" {
		tracer, err = telemetry.NewTracerProvider(ctx, cfg.Telemetry, log)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
	}
	hasher := security.NewArgon2Hasher()

	policy := security.NewPolicy(security.PolicyConfig{
		MinLength:           cfg.PasswordPolicy.MinLength,
		MinEntropyBits:      cfg.PasswordPolicy.MinEntropyBits,
		MinStrengthScore:    cfg.PasswordPolicy.MinStrengthScore,
		PersonalTokenMinLen: cfg.PasswordPolicy.PersonalTokenMinLen,
	}, hasher.Verify)

	var tokens *security.TokenManager
	if cfg.Auth.JWTSecret != "" {
		tokens, err = security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("init token manager: %w", err)
		}
	} else {
		log.Warn("jwt secret not configured, admin endpoints will refuse requests")
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	attemptStore := redisrepo.NewAttemptRepository(redisClient.Client(), cfg.Redis.AttemptPrefix, cfg.Redis.LockoutPrefix)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitPrefix := cfg.Redis.RateLimitPrefix
	if rateLimitPrefix == "" {
		rateLimitPrefix = "authguard:rate-limit"
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: rateLimitPrefix,
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	var eventPublisher port.EventPublisher
	var producer *kafkainfra.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			producer = nil
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	domainMetrics, err := telemetry.NewDomainMetrics(telemetry.DomainMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init domain metrics: %w", err)
	}

	passwordService := usecase.NewPasswordService(cfg, repos.Identities, policy, hasher, eventPublisher, log)
	passwordService.WithMetrics(domainMetrics)
	loginService := usecase.NewLoginService(cfg, attemptStore, repos.Audit, eventPublisher, log)
	loginService.WithMetrics(domainMetrics)
	auditService := usecase.NewAuditService(cfg, repos.Audit, eventPublisher, log)
	auditService.WithMetrics(domainMetrics)

	var consumer *kafkainfra.ChangeStreamConsumer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.ChangeTopic != "" {
		consumer, err = kafkainfra.NewChangeStreamConsumer(cfg.Kafka, auditService, log)
		if err != nil {
			log.Warn("failed to init change stream consumer", zap.Error(err))
			consumer = nil
		}
	}

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Tokens:      tokens,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Passwords: passwordService,
			Logins:    loginService,
			Audit:     auditService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		tracer:   tracer,
		consumer: consumer,
		producer: producer,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()
	defer func() {
		if a.tracer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = a.tracer.Shutdown(shutdownCtx)
		}
	}()

	if a.consumer != nil {
		a.logger.Info("starting change stream consumer",
			zap.String("topic", a.cfg.Kafka.ChangeTopic),
			zap.String("group", a.cfg.Kafka.ConsumerGroup),
		)
		go func() {
			if err := a.consumer.Run(ctx); err != nil {
				a.logger.Error("change stream consumer stopped", zap.Error(err))
			}
		}()
		defer func() {
			_ = a.consumer.Close()
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting authguard API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
