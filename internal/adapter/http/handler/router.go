package handler

import (
	"marketplace-escrow/internal/adapter/http/middleware"
	redisStore "marketplace-escrow/internal/adapter/storage/redis"
	"marketplace-escrow/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	PaymentSvc     ports.PaymentService
	EscrowSvc      ports.EscrowService
	WalletSvc      ports.WalletService
	CurrencySvc    ports.CurrencyService
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	WebhookSecret  string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", rl("auth_register"), authHandler.Register)
		auth.POST("/login", rl("auth_login"), authHandler.Login)
	}

	currencyHandler := NewCurrencyHandler(deps.CurrencySvc)
	currencies := v1.Group("/currencies")
	{
		currencies.GET("", rl("currencies"), currencyHandler.List)
		currencies.GET("/:code", rl("currencies"), currencyHandler.Get)
		currencies.POST("/convert", rl("currencies"), currencyHandler.Convert)
	}

	// --- Provider webhook (HMAC-signed, no JWT) ---
	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	webhookAuth := middleware.WebhookAuth(deps.SigSvc, deps.WebhookSecret, deps.Logger)
	v1.POST("/payments/confirm", rl("payments_confirm"), webhookAuth, paymentHandler.Confirm)

	// --- JWT-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("", rl("payments"), paymentHandler.Initiate)
		payments.GET("/:id", rl("payments"), paymentHandler.Get)
		payments.POST("/:id/retry", rl("payments"), paymentHandler.Retry)
	}

	escrowHandler := NewEscrowHandler(deps.EscrowSvc)
	escrows := v1.Group("/escrows", jwtAuth)
	{
		escrows.GET("/:id", rl("escrows"), escrowHandler.Get)
		escrows.GET("/:id/history", rl("escrows"), escrowHandler.History)
		escrows.POST("/:id/release", rl("escrows"), escrowHandler.Release)
		escrows.POST("/:id/dispute", rl("escrows"), escrowHandler.OpenDispute)
		escrows.POST("/:id/dispute/resolve", rl("escrows"), middleware.AdminOnly(), escrowHandler.ResolveDispute)
	}

	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.GET("/balance", rl("wallets"), walletHandler.GetBalance)
		wallets.GET("/transactions", rl("wallets"), walletHandler.ListTransactions)
		wallets.POST("/topup", rl("wallets_topup"), walletHandler.Topup)
	}

	// --- Admin routes ---
	admin := v1.Group("/admin", jwtAuth, middleware.AdminOnly())
	{
		admin.POST("/escrows/auto-release-scan", escrowHandler.AutoReleaseScan)
	}

	return r
}
