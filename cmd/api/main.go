package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sproutmarket/guard/internal/auth"
	"github.com/sproutmarket/guard/internal/background"
	"github.com/sproutmarket/guard/internal/config"
	"github.com/sproutmarket/guard/internal/database"
	"github.com/sproutmarket/guard/internal/guard"
	"github.com/sproutmarket/guard/internal/handlers"
	middlewareCustom "github.com/sproutmarket/guard/internal/middleware"
	"github.com/sproutmarket/guard/internal/models"
	"github.com/sproutmarket/guard/internal/otp"
	"github.com/sproutmarket/guard/internal/ratelimit"
	"github.com/sproutmarket/guard/internal/repositories"
	"github.com/sproutmarket/guard/internal/routes"
	"github.com/sproutmarket/guard/internal/services"
	pkgauth "github.com/sproutmarket/guard/pkg/auth"
	pkghttp "github.com/sproutmarket/guard/pkg/http"
	pkglogger "github.com/sproutmarket/guard/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	accountRepo := repositories.NewAccountRepository(db)
	challengeRepo := repositories.NewOtpChallengeRepository(db)
	totpSecretRepo := repositories.NewTotpSecretRepository(db)
	controlsRepo := repositories.NewParentalControlsRepository(db)
	spendRepo := repositories.NewSpendRepository(db)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// One shared limiter instance for the authentication surface; the store is
	// in-process, so every instance of this service throttles independently.
	limiterStore := ratelimit.NewMemoryStore()
	authLimiter := ratelimit.New(limiterStore, ratelimit.Config{
		Limit:         cfg.RateLimit.AuthLimit,
		Window:        cfg.RateLimit.AuthWindow,
		BlockDuration: cfg.RateLimit.AuthBlock,
	}).WithAudit(auditLogger)

	tokenManager := auth.NewTokenManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	credentialPolicy := pkgauth.NewCredentialPolicy(cfg.Auth.BcryptCost)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{BaseDelayMs: 100, RandomDelayMs: 50})
	totpManager := auth.NewTOTPManager(cfg.Totp.Issuer, cfg.Totp.Skew)

	codeSender, err := services.NewAWSSESCodeSender(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize code sender", slog.Any("error", err))
		os.Exit(1)
	}

	// Services
	otpCore := otp.NewService(challengeRepo, codeSender, otp.Config{
		CodeLength:  cfg.Otp.CodeLength,
		Expiry:      cfg.Otp.Expiry,
		SendTimeout: cfg.Otp.SendTimeout,
	}, logger, auditLogger)

	authService := services.NewAuthService(accountRepo, credentialPolicy, tokenManager, authLimiter, timingDelay, logger, auditLogger)
	otpService := services.NewOtpService(otpCore, accountRepo, tokenManager, authLimiter, logger, auditLogger)
	totpService := services.NewTotpService(totpSecretRepo, totpManager, authLimiter, logger, auditLogger)

	safetyGuard := guard.New(controlsRepo, spendRepo, defaultControls(cfg, logger), logger, auditLogger)

	// Handlers
	ipConfig := &pkghttp.IPConfig{}
	authHandler := handlers.NewAuthHandler(authService, authLimiter, ipConfig)
	otpHandler := handlers.NewOtpHandler(otpService, authLimiter, ipConfig)
	totpHandler := handlers.NewTotpHandler(totpService)
	checkoutHandler := handlers.NewCheckoutHandler(safetyGuard)

	cleanupManager := background.NewCleanupManager(
		challengeRepo, spendRepo, limiterStore, cfg.RateLimit.AuthWindow,
		logger, cfg.Auth.CleanupInterval,
	)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middlewareCustom.GeneralRateLimit(cfg.RateLimit.GeneralLimit, cfg.RateLimit.GeneralWindow))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, otpHandler, totpHandler, checkoutHandler, tokenManager)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.HealthCheck(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()

	go cleanupManager.Start(cleanupCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupCancel()
	cleanupManager.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// defaultControls builds the controls applied to children whose parents have
// not configured any. Unparseable times fall back to 09:00-21:00.
func defaultControls(cfg *config.Config, logger *slog.Logger) models.ParentalControls {
	start, err := models.ParseTimeOfDay(cfg.Parental.DefaultAllowedStart)
	if err != nil {
		logger.Warn("invalid PARENTAL_ALLOWED_START, using 09:00", slog.Any("error", err))
		start = models.TimeOfDay(9 * 60)
	}
	end, err := models.ParseTimeOfDay(cfg.Parental.DefaultAllowedEnd)
	if err != nil {
		logger.Warn("invalid PARENTAL_ALLOWED_END, using 21:00", slog.Any("error", err))
		end = models.TimeOfDay(21 * 60)
	}

	return models.ParentalControls{
		DailySpendLimit:  cfg.Parental.DefaultDailySpendLimit,
		TimeRestrictions: models.TimeRestrictions{Start: start, End: end},
	}
}
