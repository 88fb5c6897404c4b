package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// MinVaultSecretLength is the shortest accepted vault secret, in bytes
const MinVaultSecretLength = 32

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Blockchain BlockchainConfig
	Vault      VaultConfig
	Master     MasterConfig
	Sweep      SweepConfig
	Deposit    DepositConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    string
	Env     string
	Version string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// DSN returns the key/value form understood by lib/pq
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	Password string
}

// JWTConfig holds the admin token secret
type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// BlockchainConfig holds chain network parameters and provider endpoints
type BlockchainConfig struct {
	ChainID        int64
	NetworkName    string
	TokenContract  string
	TokenSymbol    string
	TokenDecimals  int32
	PrimaryRPC     string
	FallbackRPCs   []string
	ExplorerAPIURL string
	ExplorerAPIKey string
	ExplorerURL    string
	RequestTimeout time.Duration
}

// RPCEndpoints returns the primary endpoint followed by the fallbacks
func (c BlockchainConfig) RPCEndpoints() []string {
	endpoints := make([]string, 0, len(c.FallbackRPCs)+1)
	if c.PrimaryRPC != "" {
		endpoints = append(endpoints, c.PrimaryRPC)
	}
	for _, rpc := range c.FallbackRPCs {
		if rpc != "" && rpc != c.PrimaryRPC {
			endpoints = append(endpoints, rpc)
		}
	}
	return endpoints
}

// VaultConfig holds the key-at-rest secret
type VaultConfig struct {
	EncryptionSecret string
}

// MasterConfig holds the treasury signing key
type MasterConfig struct {
	PrivateKey string
}

// SweepConfig holds gas scheduler and sweep engine parameters
type SweepConfig struct {
	CycleInterval      time.Duration
	OptimizeInterval   time.Duration
	SettleDelay        time.Duration
	BatchSize          int
	BatchDelay         time.Duration
	GasAmountPerWallet decimal.Decimal
	GasFloor           decimal.Decimal
	MinNativeReserve   decimal.Decimal
	HighThresholdUSD   decimal.Decimal
	MediumThresholdUSD decimal.Decimal
	LowThresholdUSD    decimal.Decimal
	MinSweepUSD        decimal.Decimal
	NativeUSDPrice     decimal.Decimal
	ReceiptTimeout     time.Duration
	TransferGasLimit   uint64
	CycleLockTTL       time.Duration
	AutoStart          bool
	// MediumTierInterval and LowTierInterval space out sweeps of the lower tiers
	MediumTierInterval time.Duration
	LowTierInterval    time.Duration
	// TransferLookbackBlocks bounds the incoming transfer scan run before each sweep
	TransferLookbackBlocks uint64
}

// DepositConfig holds deposit detection parameters
type DepositConfig struct {
	PushInterval       time.Duration
	BackupPollInterval time.Duration
	MonitorTTL         time.Duration
	BackfillBlocks     uint64
	TolerancePercent   decimal.Decimal
	MinCreditUSD       decimal.Decimal
	CreditUnexpected   bool
	ConfirmInterval    time.Duration
	ConfirmBatchSize   int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    getEnv("SERVER_PORT", "8080"),
			Env:     getEnv("SERVER_ENV", "development"),
			Version: getEnv("SERVICE_VERSION", "1.0.0"),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvAsInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "custody"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Blockchain: BlockchainConfig{
			ChainID:        int64(getEnvAsInt("CHAIN_ID", 56)),
			NetworkName:    getEnv("NETWORK_NAME", "BSC"),
			TokenContract:  getEnv("TOKEN_CONTRACT", "0x55d398326f99059fF775485246999027B3197955"),
			TokenSymbol:    getEnv("TOKEN_SYMBOL", "USDT"),
			TokenDecimals:  int32(getEnvAsInt("TOKEN_DECIMALS", 18)),
			PrimaryRPC:     getEnv("BSC_RPC_URL", "https://bsc-dataseed.binance.org"),
			FallbackRPCs:   getEnvAsList("BSC_FALLBACK_RPC_URLS", []string{"https://bsc-dataseed1.defibit.io", "https://bsc-dataseed1.ninicoin.io"}),
			ExplorerAPIURL: getEnv("EXPLORER_API_URL", "https://api.bscscan.com/api"),
			ExplorerAPIKey: getEnv("EXPLORER_API_KEY", ""),
			ExplorerURL:    getEnv("EXPLORER_URL", "https://bscscan.com"),
			RequestTimeout: getEnvAsDuration("CHAIN_REQUEST_TIMEOUT", 15*time.Second),
		},
		Vault: VaultConfig{
			EncryptionSecret: getEnv("VAULT_ENCRYPTION_SECRET", ""),
		},
		Master: MasterConfig{
			PrivateKey: getEnv("MASTER_WALLET_PRIVATE_KEY", ""),
		},
		Sweep: SweepConfig{
			CycleInterval:          getEnvAsDuration("SWEEP_CYCLE_INTERVAL", 5*time.Minute),
			OptimizeInterval:       getEnvAsDuration("SWEEP_OPTIMIZE_INTERVAL", 24*time.Hour),
			SettleDelay:            getEnvAsDuration("SWEEP_SETTLE_DELAY", 60*time.Second),
			BatchSize:              getEnvAsInt("SWEEP_BATCH_SIZE", 10),
			BatchDelay:             getEnvAsDuration("SWEEP_BATCH_DELAY", 2*time.Second),
			GasAmountPerWallet:     getEnvAsDecimal("SWEEP_GAS_AMOUNT", decimal.RequireFromString("0.0015")),
			GasFloor:               getEnvAsDecimal("SWEEP_GAS_FLOOR", decimal.RequireFromString("0.001")),
			MinNativeReserve:       getEnvAsDecimal("SWEEP_MIN_NATIVE_RESERVE", decimal.RequireFromString("0.05")),
			HighThresholdUSD:       getEnvAsDecimal("SWEEP_HIGH_THRESHOLD_USD", decimal.NewFromInt(100)),
			MediumThresholdUSD:     getEnvAsDecimal("SWEEP_MEDIUM_THRESHOLD_USD", decimal.NewFromInt(20)),
			LowThresholdUSD:        getEnvAsDecimal("SWEEP_LOW_THRESHOLD_USD", decimal.NewFromInt(5)),
			MinSweepUSD:            getEnvAsDecimal("SWEEP_MIN_USD", decimal.NewFromInt(1)),
			NativeUSDPrice:         getEnvAsDecimal("NATIVE_USD_PRICE", decimal.NewFromInt(600)),
			ReceiptTimeout:         getEnvAsDuration("SWEEP_RECEIPT_TIMEOUT", 2*time.Minute),
			TransferGasLimit:       uint64(getEnvAsInt("SWEEP_TRANSFER_GAS_LIMIT", 65000)),
			CycleLockTTL:           getEnvAsDuration("SWEEP_CYCLE_LOCK_TTL", 30*time.Minute),
			AutoStart:              getEnvAsBool("SWEEP_AUTO_START", false),
			MediumTierInterval:     getEnvAsDuration("SWEEP_MEDIUM_TIER_INTERVAL", time.Hour),
			LowTierInterval:        getEnvAsDuration("SWEEP_LOW_TIER_INTERVAL", 24*time.Hour),
			TransferLookbackBlocks: uint64(getEnvAsInt("SWEEP_TRANSFER_LOOKBACK_BLOCKS", 5000)),
		},
		Deposit: DepositConfig{
			PushInterval:       getEnvAsDuration("DEPOSIT_PUSH_INTERVAL", 10*time.Second),
			BackupPollInterval: getEnvAsDuration("DEPOSIT_BACKUP_POLL_INTERVAL", 30*time.Second),
			MonitorTTL:         getEnvAsDuration("DEPOSIT_MONITOR_TTL", 24*time.Hour),
			BackfillBlocks:     uint64(getEnvAsInt("DEPOSIT_BACKFILL_BLOCKS", 5000)),
			TolerancePercent:   getEnvAsDecimal("DEPOSIT_TOLERANCE_PERCENT", decimal.NewFromInt(1)),
			MinCreditUSD:       getEnvAsDecimal("DEPOSIT_MIN_CREDIT_USD", decimal.NewFromInt(1)),
			CreditUnexpected:   getEnvAsBool("DEPOSIT_CREDIT_UNEXPECTED", true),
			ConfirmInterval:    getEnvAsDuration("DEPOSIT_CONFIRM_INTERVAL", 30*time.Second),
			ConfirmBatchSize:   getEnvAsInt("DEPOSIT_CONFIRM_BATCH_SIZE", 100),
		},
	}
}

// Validate fails fast on missing or malformed secrets
func (c *Config) Validate() error {
	var errs []error

	if c.Master.PrivateKey == "" {
		errs = append(errs, errors.New("MASTER_WALLET_PRIVATE_KEY is required"))
	} else if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.Master.PrivateKey, "0x")); err != nil {
		errs = append(errs, fmt.Errorf("MASTER_WALLET_PRIVATE_KEY is not a valid secp256k1 key: %w", err))
	}

	switch {
	case c.Vault.EncryptionSecret == "":
		errs = append(errs, errors.New("VAULT_ENCRYPTION_SECRET is required"))
	case len(c.Vault.EncryptionSecret) < MinVaultSecretLength:
		errs = append(errs, fmt.Errorf("VAULT_ENCRYPTION_SECRET must be at least %d bytes", MinVaultSecretLength))
	}

	if c.Blockchain.ExplorerAPIKey == "" {
		errs = append(errs, errors.New("EXPLORER_API_KEY is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Blockchain.TokenContract == "" {
		errs = append(errs, errors.New("TOKEN_CONTRACT is required"))
	}
	if len(c.Blockchain.RPCEndpoints()) == 0 {
		errs = append(errs, errors.New("at least one RPC endpoint is required"))
	}
	if c.Sweep.BatchSize <= 0 {
		errs = append(errs, errors.New("SWEEP_BATCH_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
