package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"flowdesk/internal/config"
	"flowdesk/internal/db"
	"flowdesk/internal/email"
	apihttp "flowdesk/internal/http"
	"flowdesk/internal/repository"
	"flowdesk/internal/security"
	"flowdesk/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	if cfg.DBAutoMigrate {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		logger.Info("migrations applied")
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	sessionRepo := repository.NewPgSessionRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	} else {
		logger.Warn("smtp not configured, verification and reset emails will fail")
	}

	var (
		deliveryLimiter service.DeliveryLimiter
		tokenStore      service.RefreshTokenStore
		redisClient     *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			deliveryLimiter = service.NewRedisDeliveryLimiter(redisClient, cfg.DeliveryRateWindow(), cfg.DeliveryRateMax)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	if tokenStore == nil {
		tokenStore = service.NewPgRefreshTokenStore(sessionRepo)
		go service.PruneRefreshSessions(ctx, sessionRepo, time.Hour, logger)
	}
	if deliveryLimiter == nil {
		deliveryLimiter = service.NewMemoryDeliveryLimiter(cfg.DeliveryRateWindow(), cfg.DeliveryRateMax)
	}

	jwtSvc := service.NewJWTServiceWithStore(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL(), tokenStore)
	accounts := service.NewAccountStore(
		userRepo,
		security.NewBcryptHasher(cfg.BcryptCost),
		service.PasswordPolicy{MinLength: cfg.PasswordMinLength, RequireMixed: cfg.PasswordRequireMixed},
	)

	policy := service.DefaultPolicy()
	policy.VerificationTTL = cfg.VerificationTTL()
	policy.ResetTTL = cfg.ResetTTL()
	policy.RequireEmailVerification = cfg.RequireEmailVerification
	policy.RevealLoginFailureReason = cfg.RevealLoginFailureReason
	policy.AppBaseURL = cfg.AppBaseURL

	credSvc := service.NewCredentialService(logger, accounts, security.NewTokenGenerator(), jwtSvc, emailSender, deliveryLimiter, policy)

	exposeDetail := !cfg.IsProduction()
	authHandler := apihttp.NewAuthHandler(logger, credSvc, exposeDetail)
	healthHandler := apihttp.NewHealthHandler(logger, pool)
	requireAuth := apihttp.JWTAuthMiddleware(logger, credSvc, exposeDetail)
	router := apihttp.NewRouter(logger, authHandler, healthHandler, requireAuth)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("env", cfg.AppEnv))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}

func migrateUp(databaseURL string) error {
	m, err := db.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
