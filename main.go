package main

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/paygate/chain"
	"github.com/yourusername/paygate/config"
	"github.com/yourusername/paygate/handlers"
	"github.com/yourusername/paygate/ledger"
	"github.com/yourusername/paygate/middleware"
	"github.com/yourusername/paygate/tokens"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	store := ledger.NewStore(db)
	issuer := tokens.NewIssuer(cfg.TokenSecret, cfg.TokenTTL, cfg.TokenMaxUses, store)
	registry := chain.NewRegistry(buildVerifiers(cfg))

	// Setup router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "paygate-api",
		})
	})

	orderHandler := handlers.NewOrderHandler(store, cfg, registry, issuer)
	downloadHandler := handlers.NewDownloadHandler(store, cfg, issuer)

	// API routes
	api := router.Group("/api/v1")
	{
		api.POST("/orders", orderHandler.CreateOrder)
		api.GET("/orders/:id", orderHandler.GetOrder)
		api.POST("/payments/verify", orderHandler.VerifyPayment)
		api.GET("/download/:token", downloadHandler.Redeem)

		// Manual settlement for local development only. The route does not
		// exist in production builds of the router.
		if cfg.DevMarkPaidEnabled() {
			admin := api.Group("/admin")
			admin.Use(middleware.AdminAuthMiddleware(cfg))
			admin.POST("/orders/:id/mark-paid", orderHandler.MarkPaid)
		}
	}

	// The packaged ZIPs are never static-served; any direct path gets 403.
	router.GET("/artifacts/*filepath", downloadHandler.BlockArtifacts)

	// Sweep abandoned checkouts into EXPIRED.
	go sweepExpiredOrders(store, cfg)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting paygate API server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func buildVerifiers(cfg *config.Config) map[string]chain.Verifier {
	verifiers := make(map[string]chain.Verifier)
	for chainID, rpcURL := range cfg.RPCURLs {
		verifiers[chainID] = chain.NewEVMVerifier(rpcURL, cfg.RPCTimeout)
	}
	if cfg.HorizonURL != "" {
		stellar := chain.NewStellarVerifier(cfg.HorizonURL)
		verifiers[config.ChainStellarPubnet] = stellar
		verifiers[config.ChainStellarTestnet] = stellar
	}
	return verifiers
}

func sweepExpiredOrders(store *ledger.Store, cfg *config.Config) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		expired, err := store.ExpireStaleOrders(time.Now().Add(-cfg.OrderPendingTTL))
		if err != nil {
			log.Printf("Failed to expire stale orders: %v", err)
			continue
		}
		if expired > 0 {
			log.Printf("Expired %d stale orders", expired)
		}
	}
}
