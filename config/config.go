package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/yourusername/paygate/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Chain IDs resolved against Stellar Horizon instead of an EVM JSON-RPC
// endpoint.
const (
	ChainStellarPubnet  = "stellar-pubnet"
	ChainStellarTestnet = "stellar-testnet"
)

type Config struct {
	Port            string
	AppEnv          string
	DatabaseURL     string
	MerchantAddress string
	DefaultChainID  string
	RPCURLs         map[string]string
	HorizonURL      string
	BasePrice       decimal.Decimal
	TokenSecret     string
	TokenTTL        time.Duration
	TokenMaxUses    int
	AdminSecret     string
	ArtifactDir     string
	OrderPendingTTL time.Duration
	SweepInterval   time.Duration
	RPCTimeout      time.Duration
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:            os.Getenv("PORT"),
		AppEnv:          getEnvOrDefault("APP_ENV", "development"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		MerchantAddress: strings.ToLower(os.Getenv("MERCHANT_ADDRESS")),
		DefaultChainID:  getEnvOrDefault("CHAIN_ID", "11155111"),
		RPCURLs:         loadRPCURLs(),
		HorizonURL:      getEnvOrDefault("HORIZON_URL", "https://horizon-testnet.stellar.org"),
		BasePrice:       parseDecimal("BASE_PRICE", "0.01"),
		TokenSecret:     os.Getenv("TOKEN_SECRET"),
		TokenTTL:        time.Duration(parseInt("TOKEN_TTL_SECONDS", 86400)) * time.Second,
		TokenMaxUses:    parseInt("TOKEN_MAX_USES", 3),
		AdminSecret:     getEnvOrDefault("ADMIN_SECRET", "dev-admin-secret"),
		ArtifactDir:     getEnvOrDefault("ARTIFACT_DIR", "./artifacts"),
		OrderPendingTTL: parseDuration("ORDER_PENDING_TTL", 24*time.Hour),
		SweepInterval:   parseDuration("SWEEP_INTERVAL", 10*time.Minute),
		RPCTimeout:      time.Duration(parseInt("RPC_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	if cfg.Production() {
		if cfg.MerchantAddress == "" {
			return nil, fmt.Errorf("MERCHANT_ADDRESS is required in production")
		}
		if cfg.TokenSecret == "" {
			return nil, fmt.Errorf("TOKEN_SECRET is required in production")
		}
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required in production")
		}
	}
	if cfg.TokenSecret == "" {
		cfg.TokenSecret = "dev-token-secret"
	}

	return cfg, nil
}

// Production reports whether hardened validation applies and dev-only routes
// are withheld from the router.
func (c *Config) Production() bool {
	return c.AppEnv == "production"
}

// DevMarkPaidEnabled gates the manual mark-paid route. It can never be true
// in production: LoadConfig refuses to start production without a merchant
// address, so the bypass is unreachable by configuration, not hidden by UI.
func (c *Config) DevMarkPaidEnabled() bool {
	return !c.Production()
}

// ArtifactPath returns the on-disk location of a product's packaged ZIP.
func (c *Config) ArtifactPath(productID string) string {
	return filepath.Join(c.ArtifactDir, productID, "package.zip")
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates the ledger collections. Shared with tests, which run
// it against an in-memory sqlite database.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Product{},
		&models.Order{},
		&models.PaymentRecord{},
		&models.DownloadToken{},
		&models.DownloadEvent{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// loadRPCURLs builds the chain-id to JSON-RPC endpoint map. EVM_RPC_URL
// binds to CHAIN_ID; RPC_URL_<id> entries add further chains.
func loadRPCURLs() map[string]string {
	urls := make(map[string]string)
	if url := os.Getenv("EVM_RPC_URL"); url != "" {
		urls[getEnvOrDefault("CHAIN_ID", "11155111")] = url
	}
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "RPC_URL_") {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(kv, "RPC_URL_"), "=", 2)
		if len(parts) == 2 && parts[1] != "" {
			urls[parts[0]] = parts[1]
		}
	}
	return urls
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

func parseDuration(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return def
}

func parseDecimal(key, def string) decimal.Decimal {
	if raw := os.Getenv(key); raw != "" {
		if d, err := decimal.NewFromString(raw); err == nil {
			return d
		}
	}
	d, _ := decimal.NewFromString(def)
	return d
}
