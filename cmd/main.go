package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configs "github.com/Payphone-Digital/auth-service/config"
	"github.com/Payphone-Digital/auth-service/internal/handler"
	"github.com/Payphone-Digital/auth-service/internal/middleware"
	"github.com/Payphone-Digital/auth-service/internal/oauth"
	"github.com/Payphone-Digital/auth-service/internal/repository"
	"github.com/Payphone-Digital/auth-service/internal/router"
	"github.com/Payphone-Digital/auth-service/internal/service"
	"github.com/Payphone-Digital/auth-service/pkg/cache"
	"github.com/Payphone-Digital/auth-service/pkg/circuit"
	"github.com/Payphone-Digital/auth-service/pkg/cookie"
	"github.com/Payphone-Digital/auth-service/pkg/database"
	"github.com/Payphone-Digital/auth-service/pkg/hash"
	"github.com/Payphone-Digital/auth-service/pkg/logger"
	"github.com/Payphone-Digital/auth-service/pkg/mail"
	"github.com/Payphone-Digital/auth-service/pkg/pool"
	"github.com/Payphone-Digital/auth-service/pkg/queue"
	"github.com/Payphone-Digital/auth-service/pkg/redis"
	"github.com/Payphone-Digital/auth-service/pkg/scheduler"
	"github.com/Payphone-Digital/auth-service/pkg/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	config, err := configs.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.InitLogger(config); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.GetLogger()
	log.Info("Application starting",
		zap.String("app_name", config.App.Name),
		zap.String("environment", config.App.Environment),
		zap.String("version", "1.0.0"),
	)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := validation.RegisterGin(); err != nil {
		logger.Fatal("Failed to register validators", zap.Error(err))
	}

	// Token keys are mandatory; the service cannot sign anything without them
	keys, err := service.LoadKeys(config.JWT)
	if err != nil {
		logger.Fatal("Failed to load JWT keys", zap.Error(err))
	}
	codec, err := service.NewTokenCodec(config.JWT, keys)
	if err != nil {
		logger.Fatal("Failed to build token codec", zap.Error(err))
	}

	db, err := database.NewPostgresDB(config)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	log.Info("Database migrated successfully")

	hasher, err := hash.New(hash.Method(config.Auth.PasswordHasher), config.Auth.BcryptCost)
	if err != nil {
		logger.Fatal("Failed to build password hasher", zap.Error(err))
	}
	seedAdmin(db, config, hasher)

	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.NewClient(config)
		if err != nil {
			// the cache works without its remote tier; redis revocation does not
			if config.Auth.RevocationBackend == "redis" {
				logger.Fatal("Redis is required for the revocation store", zap.Error(err))
			}
			log.Warn("Redis unavailable, continuing with local cache only", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	cacheOpts := []cache.Option{cache.WithLogger(log)}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, cache.WithRemote(redisClient))
	}
	userCache, err := cache.New(config.Cache.LocalSize, cacheOpts...)
	if err != nil {
		logger.Fatal("Failed to build cache", zap.Error(err))
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewOAuthAccountRepository(db)

	var revocationBackend service.RevocationBackend = repository.NewRevokedTokenRepository(db)
	if config.Auth.RevocationBackend == "redis" {
		revocationBackend = service.NewRedisRevocationBackend(redisClient)
	}
	revocation := service.NewRevocationStore(revocationBackend, codec)
	sessions := service.NewSessionTokens(codec, config.JWT.RegistrationTTL, config.JWT.PasswordResetTTL)

	// Notifications
	transport, err := mail.NewMailer(config.Mail, log)
	if err != nil {
		logger.Fatal("Failed to build mailer", zap.Error(err))
	}
	mailBreaker := circuit.NewBreaker("mail", circuit.DefaultConfig(), log)
	templates, err := mail.NewTemplateMailer(transport, mail.Address{
		Name:    config.Mail.FromName,
		Address: config.Mail.FromAddress,
	}, mailBreaker)
	if err != nil {
		logger.Fatal("Failed to load mail templates", zap.Error(err))
	}
	publisher := queue.NewPublisher(config.Queue, logger.WithFields(zap.String("component", "queue")))
	notifier := service.NewNotifier(templates, publisher, config.App.Name, config.Auth.OTPExpiry)

	// Services
	userService := service.NewUserService(userRepo, userCache, config.Cache.UserTTL)
	authService := service.NewAuthService(service.AuthDeps{
		Users:      userRepo,
		Profiles:   userService,
		Codec:      codec,
		Sessions:   sessions,
		Revocation: revocation,
		Hasher:     hasher,
		Notifier:   notifier,
		OTPExpiry:  config.Auth.OTPExpiry,
		ExposeOTP:  config.OTPExposureAllowed(),
	})

	poolConfig := pool.DefaultPoolConfig()
	poolConfig.RequestTimeout = config.OAuth.HTTPTimeout
	providerPool := pool.NewConnectionPool(poolConfig, log)
	registry := oauth.NewRegistryFromConfig(config.OAuth, providerPool)
	log.Info("OAuth providers configured", zap.Strings("providers", registry.Configured()))

	oauthService := service.NewOAuthService(service.OAuthDeps{
		Registry:         registry,
		Accounts:         accountRepo,
		Users:            userRepo,
		Profiles:         userService,
		Auth:             authService,
		Notifier:         notifier,
		StateTTL:         config.OAuth.StateTTL,
		AllowedRedirects: config.OAuth.AllowedRedirects,
	})

	// Background jobs
	jobScheduler := scheduler.New(logger.WithFields(zap.String("component", "scheduler")))
	jobs := service.NewJobs(revocation, userRepo, config.Auth.UnverifiedRetention)
	if err := jobs.Register(jobScheduler, config.Jobs); err != nil {
		logger.Fatal("Failed to register jobs", zap.Error(err))
	}
	jobScheduler.Start()

	// HTTP
	jar := cookie.New(config.Cookie)
	healthDeps := handler.HealthDeps{
		Database:  handler.PingFunc(func(ctx context.Context) error { return database.Ping(ctx, db) }),
		Scheduler: jobScheduler,
		Pool:      providerPool,
		Cache:     userCache,
	}
	if redisClient != nil {
		healthDeps.Redis = redisClient
	}

	r := router.NewRouter(
		handler.NewAuthHandler(authService, jar, config.Cookie),
		handler.NewOAuthHandler(oauthService, jar, config.Cookie, config.OAuth.StateTTL),
		handler.NewHealthHandler(healthDeps),

		middleware.NewAuthMiddleware(codec, revocation, authService, jar, config.Cookie),
		config,
	).SetupRoutes()

	srv := &http.Server{
		Addr:              ":" + config.App.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting",
			zap.String("port", config.App.Port),
			zap.String("host", "0.0.0.0"),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server",
				zap.Error(err),
				zap.String("port", config.App.Port),
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	jobScheduler.Stop()
	if err := notifier.Wait(ctx); err != nil {
		log.Warn("Background tasks still running at shutdown", zap.Error(err))
	}
	providerPool.CloseAllConnections()
	if err := publisher.Close(); err != nil {
		log.Warn("Failed to close event publisher", zap.Error(err))
	}

	log.Info("Server stopped")
}
