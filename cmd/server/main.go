package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoserver "github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	api "github.com/migoVanDingo/ed-user-management/api/echo"
	"github.com/migoVanDingo/ed-user-management/config"
	"github.com/migoVanDingo/ed-user-management/events"
	"github.com/migoVanDingo/ed-user-management/internal/metrics"
	"github.com/migoVanDingo/ed-user-management/log"
	"github.com/migoVanDingo/ed-user-management/middleware"
	"github.com/migoVanDingo/ed-user-management/mongodb"
	"github.com/migoVanDingo/ed-user-management/notify"
	"github.com/migoVanDingo/ed-user-management/services"
	"github.com/migoVanDingo/ed-user-management/tracing"
)

var (
	appLogger      log.Logger
	tracerProvider *sdktrace.TracerProvider
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	appLogger = log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	appLogger.Info(ctx, "Starting ed-user-management server...", map[string]interface{}{
		"http_port":           cfg.HTTPPort,
		"mongo_db_name":       cfg.MongoDBName,
		"environment":         cfg.Environment,
		"verification_policy": cfg.VerificationPolicy,
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize TracerProvider", err, nil)
	}
	tracerProvider = tp

	metrics.InitCustomMetrics(prometheus.DefaultRegisterer)

	// --- Stores ---
	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		appLogger.Fatal(ctx, "Failed to initialize MongoDB connection", initErr, nil)
	}
	db := mongodb.GetDB()

	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize UserRepository", err, nil)
	}
	sessionRepo, err := mongodb.NewSessionRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize SessionRepository", err, nil)
	}
	membershipRepo, err := mongodb.NewMembershipRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize MembershipRepository", err, nil)
	}
	inviteRepo, err := mongodb.NewOrganizationInviteRepository(ctx, db, membershipRepo)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize OrganizationInviteRepository", err, nil)
	}
	regInviteRepo, err := mongodb.NewRegistrationInviteRepository(ctx, db)
	if err != nil {
		appLogger.Fatal(ctx, "Failed to initialize RegistrationInviteRepository", err, nil)
	}

	// --- Collaborators ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	eventBus := events.NewRedisBus(redisClient)
	notifier := notify.NewClient(cfg.NotificationServiceURL)
	verifier := services.NewHTTPIdentityVerifier(cfg.IdentityVerifierURL, appLogger)

	// --- Services ---
	issuer := services.NewTokenIssuer(cfg.JWTSecretKey, cfg.JWTIssuer, cfg.AccessTokenTTL())
	resolver := services.NewIdentityResolver(userRepo, cfg.VerificationPolicy, cfg.TrustedProviders, appLogger)
	redeemer := services.NewInviteRedeemer(inviteRepo, membershipRepo, regInviteRepo, userRepo, appLogger)
	sessionManager := services.NewSessionManager(sessionRepo, cfg.RefreshTokenTTL(), appLogger)
	emitter := services.NewVerificationEmitter(eventBus, appLogger)
	exchangeService := services.NewExchangeService(
		verifier, resolver, redeemer, sessionManager, issuer, emitter, userRepo, appLogger)
	registrationService := services.NewRegistrationService(verifier, regInviteRepo, notifier, services.RegistrationConfig{
		FrontendURL:     cfg.FrontendURL,
		EmailFrom:       cfg.EmailFrom,
		InviteTTL:       time.Duration(cfg.RegistrationInviteDays) * 24 * time.Hour,
		SystemInviterID: cfg.SystemInviterID,
	}, appLogger)
	userService := services.NewUserService(userRepo, appLogger)
	authMiddleware := middleware.NewAccessTokenAuth(issuer)

	// --- HTTP server ---
	e := echoserver.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	userAPI := api.NewUserManagementAPI(
		exchangeService,
		redeemer,
		registrationService,
		userService,
		sessionManager,
		authMiddleware,
		api.CookieSettings{
			Local:      cfg.IsLocal(),
			AccessTTL:  cfg.AccessTokenTTL(),
			RefreshTTL: cfg.RefreshTokenTTL(),
		},
		func(c echoserver.Context) error { return mongodb.Ping(c.Request().Context()) },
	)
	userAPI.RegisterRoutes(e)

	go func() {
		addr := fmt.Sprintf(":%s", cfg.HTTPPort)
		appLogger.Info(context.Background(), "HTTP server listening", map[string]interface{}{"addr": addr})
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(context.Background(), "Failed to start HTTP server", err, nil)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	receivedSignal := <-quit

	appLogger.Info(ctx, fmt.Sprintf("Received signal: %v. Shutting down server...", receivedSignal))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(shutdownCtx, "HTTP server shutdown error", err, nil)
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			appLogger.Error(shutdownCtx, "TracerProvider shutdown error", err, nil)
		}
	}

	if err := redisClient.Close(); err != nil {
		appLogger.Error(shutdownCtx, "Redis client close error", err, nil)
	}

	mongodb.CloseMongoDB(shutdownCtx)

	appLogger.Info(shutdownCtx, "Server gracefully stopped.")
}
