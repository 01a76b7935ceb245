package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/astraweb/lunaria/backend/internal/config"
	"github.com/astraweb/lunaria/backend/internal/infra/oracle"
	"github.com/astraweb/lunaria/backend/internal/jobs/cleanup"
	pgrepo "github.com/astraweb/lunaria/backend/internal/repo/postgres"
	redrepo "github.com/astraweb/lunaria/backend/internal/repo/redis"
	authsvc "github.com/astraweb/lunaria/backend/internal/services/auth"
	billingsvc "github.com/astraweb/lunaria/backend/internal/services/billing"
	creditssvc "github.com/astraweb/lunaria/backend/internal/services/credits"
	ratesvc "github.com/astraweb/lunaria/backend/internal/services/rate"
	readingssvc "github.com/astraweb/lunaria/backend/internal/services/readings"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
	cleanupJob *cleanup.Job
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	sessionRepo := redrepo.NewSessionRepo(redisClient)
	rateRepo := redrepo.NewRateRepo(redisClient)

	userRepo := pgrepo.NewUserRepo(pool)
	creditRepo := pgrepo.NewCreditRepo(pool)
	ledgerRepo := pgrepo.NewLedgerRepo(pool)
	readingRepo := pgrepo.NewReadingRepo(pool)

	jwtManager := authsvc.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)
	authService := authsvc.NewService(jwtManager, sessionRepo, userRepo, cfg.Auth.RefreshTTL)

	creditsService := creditssvc.NewService(creditssvc.Dependencies{
		Pool:       pool,
		Balances:   creditRepo,
		Ledger:     ledgerRepo,
		Users:      userRepo,
		Allotments: cfg.Credits.Allotments(),
	})

	billingService := billingsvc.NewService(userRepo, creditsService, cfg.Stripe, log)

	oracleClient, err := oracle.NewClient(oracle.Config{
		BaseURL: cfg.Oracle.BaseURL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init oracle client: %w", err)
	}

	readingsLimiter := ratesvc.NewLimiter(rateRepo, cfg.Limits.ReadingsPerMinute, cfg.Limits.ReadingsPerHour)
	readingsService := readingssvc.NewService(readingRepo, creditsService, oracleClient, readingsLimiter, log)
	cleanupJob := cleanup.New(readingRepo, cfg.Cleanup.ReadingsRetention, log)

	RegisterRoutes(r, Dependencies{
		AuthService:     authService,
		CreditsService:  creditsService,
		BillingService:  billingService,
		ReadingsService: readingsService,
		Logger:          log,
		Config:          cfg,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
		cleanupJob: cleanupJob,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.runCleanupLoop(ctx)

	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) runCleanupLoop(ctx context.Context) {
	if a.cleanupJob == nil || a.postgres == nil {
		return
	}

	interval := a.cfg.Cleanup.Interval
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	if err := a.cleanupJob.Run(ctx); err != nil {
		a.logger.Warn("cleanup run failed", zap.Error(err))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.cleanupJob.Run(ctx); err != nil {
				a.logger.Warn("cleanup run failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
