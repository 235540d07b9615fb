package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	cacheadapter "github.com/GertsDev/burgerverse-backend/internal/adapters/cache"
	eventadapter "github.com/GertsDev/burgerverse-backend/internal/adapters/events"
	grpcadapter "github.com/GertsDev/burgerverse-backend/internal/adapters/grpc"
	httpadapter "github.com/GertsDev/burgerverse-backend/internal/adapters/http"
	"github.com/GertsDev/burgerverse-backend/internal/adapters/mailer"
	"github.com/GertsDev/burgerverse-backend/internal/adapters/postgres"
	"github.com/GertsDev/burgerverse-backend/internal/adapters/security"
	"github.com/GertsDev/burgerverse-backend/internal/application"
	"github.com/GertsDev/burgerverse-backend/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	service    *application.Service
	outbox     ports.OutboxRepository
	sqlDB      *sql.DB
	redis      *redis.Client
	refreshTTL time.Duration
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping burgerverse auth service",
		"service_id", cfg.ServiceID,
		"env", cfg.Env,
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"refresh_registry_backend", cfg.RefreshRegistryBackend,
	)

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if err := postgres.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	tokens, err := security.NewJWTIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		_ = sqlDB.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}

	repos := postgres.NewRepositories(db)
	var registry ports.RefreshTokenRegistry = repos.RefreshTokens
	if cfg.RefreshRegistryBackend == RegistryBackendRedis {
		registry = cacheadapter.NewRedisRefreshRegistry(redisClient)
	}

	hasher := security.NewBcryptHasher(cfg.BcryptCost, cfg.HashConcurrency)
	logger.Info("password hasher ready", "bcrypt_cost", hasher.Cost(), "concurrency", cfg.HashConcurrency)

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ResetCodeTTL:               cfg.ResetCodeTTL,
			FailedLoginThreshold:       cfg.FailedLoginThreshold,
			LockoutDuration:            cfg.LockoutDuration,
			RegisterRateLimitThreshold: cfg.RegisterRateLimitThreshold,
			RegisterRateLimitWindow:    cfg.RegisterRateLimitWindow,
			ResetRateLimitThreshold:    cfg.ResetRateLimitThreshold,
			ResetRateLimitWindow:       cfg.ResetRateLimitWindow,

			ResetSubmitRateLimitThreshold: cfg.ResetSubmitRateLimitThreshold,
			ResetSubmitRateLimitWindow:    cfg.ResetSubmitRateLimitWindow,
			ResetWrongCodeThreshold:       cfg.ResetWrongCodeThreshold,
			ResetWrongCodeWindow:          cfg.ResetWrongCodeWindow,

			MailTimeout: cfg.MailTimeout,
		},
		Identities: repos.Identities,
		Registry:   registry,
		Outbox:     repos.Outbox,
		Lockouts:   cacheadapter.NewRedisLockoutStore(redisClient),
		Hasher:     hasher,
		Tokens:     tokens,
		Mailer:     newMailer(cfg, logger),
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		service:    svc,
		outbox:     repos.Outbox,
		sqlDB:      sqlDB,
		redis:      redisClient,
		refreshTTL: tokens.RefreshTTL(),
	}, nil
}

func newMailer(cfg Config, logger *slog.Logger) ports.Mailer {
	if cfg.MailHost == "" {
		logger.Warn("MAIL_HOST not set, reset codes are logged instead of sent")
		return mailer.NewLogMailer(logger)
	}
	smtp, err := mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.MailHost,
		Port:     cfg.MailPort,
		Username: cfg.MailUser,
		Password: cfg.MailPassword,
		From:     cfg.MailFrom,
		Timeout:  cfg.MailTimeout,
	})
	if err != nil {
		logger.Error("smtp mailer disabled", "error", err)
		return mailer.NewLogMailer(logger)
	}
	return smtp
}

func (r *Runtime) ready(ctx context.Context) error {
	if err := r.sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

func (r *Runtime) close() {
	_ = r.redis.Close()
	_ = r.sqlDB.Close()
}

// RunAPI serves HTTP and gRPC until a signal arrives or either server fails.
func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.close()

	handler := httpadapter.NewHandler(r.service, httpadapter.Options{
		Cookie: httpadapter.CookieConfig{
			Secure: r.cfg.CookieSecure,
			MaxAge: r.refreshTTL,
		},
		Ready:          r.ready,
		AllowedOrigins: r.cfg.CORSAllowedOrigins,
		TrustProxy:     r.cfg.TrustProxy,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", r.cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcadapter.LoggingInterceptor(r.logger)))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewAuthInternalServer(r.service))

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen gRPC: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("http server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		r.logger.Info("shutting down servers")
		healthSrv.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		r.logger.Error("server failure", "error", err)
		return err
	}
	return nil
}

// RunWorker drives the outbox publisher and the expired-session sweeper.
func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer r.close()

	var publisher ports.EventPublisher = eventadapter.NewLoggingPublisher(r.logger)
	if r.cfg.RabbitMQURL != "" {
		amqpPublisher := eventadapter.NewAMQPPublisher(r.logger, r.cfg.RabbitMQURL, eventadapter.DefaultExchange)
		defer func() { _ = amqpPublisher.Close() }()
		publisher = amqpPublisher
	}

	outbox := eventadapter.NewOutboxWorker(
		r.logger,
		r.outbox,
		publisher,
		r.cfg.OutboxPollInterval,
		r.cfg.OutboxBatchSize,
		r.cfg.OutboxClaimTTL,
		r.cfg.OutboxMaxRetries,
	)
	sweeper := eventadapter.NewRegistrySweeper(r.logger, r.service, r.cfg.SweepInterval, r.cfg.SweepBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.logger.Info("outbox worker started")
		return ignoreCanceled(outbox.Run(gctx))
	})
	g.Go(func() error {
		r.logger.Info("registry sweeper started", "interval", r.cfg.SweepInterval.String())
		return ignoreCanceled(sweeper.Run(gctx))
	})
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
