package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-escrow/config"
	httpHandler "marketplace-escrow/internal/adapter/http/handler"
	"marketplace-escrow/internal/adapter/kafka"
	"marketplace-escrow/internal/adapter/provider"
	"marketplace-escrow/internal/adapter/rates"
	pgStorage "marketplace-escrow/internal/adapter/storage/postgres"
	redisStorage "marketplace-escrow/internal/adapter/storage/redis"
	"marketplace-escrow/internal/core/domain"
	"marketplace-escrow/internal/core/ports"
	"marketplace-escrow/internal/service"
	"marketplace-escrow/pkg/logger"

	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Marketplace Escrow API")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	userRepo := pgStorage.NewUserRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	escrowRepo := pgStorage.NewEscrowRepo(pool)
	currencyRepo := pgStorage.NewCurrencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	dedupStore := redisStorage.NewDedupStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize notification publisher
	var publisher ports.NotificationPublisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		defer producer.Close() //nolint:errcheck
		publisher = producer
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka producer ready")
	} else {
		publisher = kafka.NewNopPublisher()
		log.Info().Msg("Kafka disabled, notifications dropped")
	}

	// Shared HTTP client for outbound provider and rate calls
	httpClient := &http.Client{Timeout: cfg.Providers.Timeout}

	// Initialize provider adapters
	stripeAdapter := provider.NewStripeAdapter(httpClient, cfg.Providers.Stripe.BaseURL, cfg.Providers.Stripe.APIKey, log)
	paypalAdapter := provider.NewPayPalAdapter(httpClient, cfg.Providers.PayPal.BaseURL, cfg.Providers.PayPal.APIKey, log)
	cryptoAdapter := provider.NewCryptoAdapter(log)
	providers := map[domain.PaymentMethod]ports.ProviderAdapter{
		stripeAdapter.Method(): stripeAdapter,
		paypalAdapter.Method(): paypalAdapter,
		cryptoAdapter.Method(): cryptoAdapter,
	}

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize business services
	ratesClient := rates.NewClient(httpClient, cfg.Rates.APIURL, log)
	currencySvc := service.NewCurrencyService(currencyRepo, ratesClient, cfg.Rates.BaseCurrency, cfg.Rates.RefreshInterval, log)
	authSvc := service.NewAuthService(userRepo, walletRepo, hashSvc, tokenSvc, log)
	walletSvc := service.NewWalletService(walletRepo, transactor, log)
	paymentSvc := service.NewPaymentService(
		paymentRepo,
		escrowRepo,
		orderRepo,
		walletRepo,
		currencySvc,
		providers,
		dedupStore,
		publisher,
		transactor,
		log,
	)
	escrowSvc := service.NewEscrowService(
		escrowRepo,
		paymentRepo,
		orderRepo,
		walletRepo,
		publisher,
		transactor,
		decimal.NewFromFloat(cfg.Escrow.CommissionPercent),
		log,
	)

	// Background exchange-rate refresher
	go currencySvc.Start(ctx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		PaymentSvc:     paymentSvc,
		EscrowSvc:      escrowSvc,
		WalletSvc:      walletSvc,
		CurrencySvc:    currencySvc,
		TokenSvc:       tokenSvc,
		SigSvc:         sigSvc,
		WebhookSecret:  cfg.Providers.WebhookSecret,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")
	stop() // stops the rate refresher

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
