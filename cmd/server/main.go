package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/audit"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/auth"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/config"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/health"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/logger"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/mailer"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/metrics"
	authmw "github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/middleware"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/notice"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/notifier"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/repository"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/security"
	"github.com/PRANAVBIRHADE/ID-MANAGEMNET/internal/session"
)

const version = "1.0.0"

func main() {
	cfg := config.Load()

	log := logger.New(logger.DefaultConfig())

	if cfg.JWT.Secret == "" {
		log.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

	dbPool, err := setupDatabase(cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("connected to database", "host", cfg.Database.Host, "db", cfg.Database.DBName)

	// Repositories
	userRepo := repository.NewUserRepository(dbPool)
	studentRepo := repository.NewStudentRepository(dbPool)
	sessionRepo := repository.NewSessionRepository(dbPool)
	securityLogRepo := repository.NewSecurityLogRepository(dbPool)
	noticeRepo := repository.NewNoticeRepository(dbPool)

	// Services
	tokenService := auth.NewTokenService(auth.TokenServiceConfig{
		Secret:      cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.TokenExpiry,
		Issuer:      cfg.JWT.Issuer,
	})
	passwordValidator := auth.NewPasswordValidator()
	sessionService := session.NewService(sessionRepo, cfg.Security.SessionTimeout, log)
	auditService := audit.NewService(securityLogRepo, log)
	bus := notifier.NewBus()
	mail := mailer.NewSMTPMailer(cfg.Mail, log)

	authService := auth.NewService(
		userRepo,
		studentRepo,
		sessionService,
		auditService,
		tokenService,
		passwordValidator,
		bus,
		cfg.Security,
		log,
	)
	securityService := security.NewService(
		userRepo,
		sessionService,
		auditService,
		mail,
		passwordValidator,
		cfg.Security,
		log,
	)
	noticeService := notice.NewService(noticeRepo, bus, log)

	// Handlers
	authHandler := auth.NewHandler(authService)
	securityHandler := security.NewHandler(securityService, authService, log)
	noticeHandler := notice.NewHandler(noticeService, log)
	healthHandler := health.NewHandler(health.Config{
		DBPool:  dbPool,
		Version: version,
	})

	// Middleware
	authMiddleware := authmw.NewAuthMiddleware(tokenService)
	operatorOnly := authmw.RequireRole(repository.RoleOperator)
	loginLimiter := authmw.NewLoginRateLimiter()

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(authmw.StructuredLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/ready", healthHandler.Readiness)
	r.Get("/health/live", healthHandler.Liveness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Login endpoints carry an IP rate limit on top of the per-account lockout
	r.Group(func(r chi.Router) {
		r.Use(loginLimiter.Handler)
		auth.RegisterRoutes(r, authHandler)
	})

	security.RegisterRoutes(r, securityHandler, authMiddleware.Authenticate, operatorOnly)
	notice.RegisterRoutes(r, noticeHandler, authMiddleware.Authenticate, operatorOnly)

	// Background expired-session sweeper
	cleanerCtx, cancelCleaner := context.WithCancel(context.Background())
	defer cancelCleaner()
	go sessionService.RunCleaner(cleanerCtx, time.Hour)

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	healthHandler.SetReady(false)
	cancelCleaner()
	loginLimiter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited")
}

// setupDatabase creates and configures the database connection pool
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 5 * time.Minute
	poolConfig.MaxConnIdleTime = 1 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
