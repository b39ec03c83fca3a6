package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// Required fields are validated at startup to ensure fail-fast behavior. The
// recipient identity is the one exception: a missing or invalid identity leaves
// Identity nil and records IdentityErr, so the server can still start and answer
// purchases with a service-unavailable error.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// Solana configuration
	SolanaRPCURL          string
	SolanaNetwork         string // "mainnet" or "devnet"
	CraftTokenMintAddress string
	CraftTokenDecimals    int
	EnforceTransferAmount bool

	// Recipient identity (treasury wallet). Nil when unavailable.
	Identity    *Identity
	IdentityErr error

	// Timeouts for blocking collaborators
	VerifyTimeout time.Duration
	IssueTimeout  time.Duration

	// IPFS configuration
	IPFSAPIURL     string
	IPFSGatewayURL string

	// NATS configuration
	NATSURL     string
	NATSEnabled bool

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string
	TemporalEnabled   bool

	// Email configuration
	SMTP SMTPConfig

	// Notification dispatch
	NotifyWorkers   int
	NotifyQueueSize int
	NotifyTimeout   time.Duration
}

// SMTPConfig holds the credentials used to deliver purchase emails.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// Configured reports whether enough SMTP settings are present to send mail.
func (s SMTPConfig) Configured() bool {
	return s.Host != "" && s.Username != "" && s.Password != ""
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// Solana configuration
	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	cfg.SolanaNetwork = getEnvOrDefault("SOLANA_NETWORK", "devnet")
	if cfg.SolanaNetwork != "mainnet" && cfg.SolanaNetwork != "devnet" {
		errs = append(errs, fmt.Errorf("SOLANA_NETWORK must be 'mainnet' or 'devnet', got %q", cfg.SolanaNetwork))
	}

	cfg.CraftTokenMintAddress = os.Getenv("CRAFT_TOKEN_MINT_ADDRESS")
	if cfg.CraftTokenMintAddress == "" {
		errs = append(errs, fmt.Errorf("CRAFT_TOKEN_MINT_ADDRESS is required"))
	}

	decimals, err := parseInt("CRAFT_TOKEN_DECIMALS", 6)
	if err != nil {
		errs = append(errs, err)
	} else if decimals < 0 || decimals > 18 {
		errs = append(errs, fmt.Errorf("CRAFT_TOKEN_DECIMALS must be between 0 and 18, got %d", decimals))
	} else {
		cfg.CraftTokenDecimals = decimals
	}

	enforce, err := parseBool("ENFORCE_TRANSFER_AMOUNT", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.EnforceTransferAmount = enforce
	}

	// Recipient identity. Never fatal: see Config docs.
	cfg.Identity, cfg.IdentityErr = LoadIdentity(
		os.Getenv("ADMIN_WALLET_PRIVATE_KEY"),
		os.Getenv("ADMIN_WALLET_PUBLIC_KEY"),
	)

	// Timeouts
	verifyTimeout, err := parseDuration("VERIFY_TIMEOUT", "20s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.VerifyTimeout = verifyTimeout
	}

	issueTimeout, err := parseDuration("ISSUE_TIMEOUT", "60s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.IssueTimeout = issueTimeout
	}

	// IPFS configuration
	cfg.IPFSAPIURL = getEnvOrDefault("IPFS_API_URL", "localhost:5001")
	cfg.IPFSGatewayURL = getEnvOrDefault("IPFS_GATEWAY_URL", "https://ipfs.io/ipfs")

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")
	natsEnabled, err := parseBool("NATS_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NATSEnabled = natsEnabled
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "craftmint-notifications")
	temporalEnabled, err := parseBool("TEMPORAL_ENABLED", true)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.TemporalEnabled = temporalEnabled
	}

	// Email configuration
	cfg.SMTP.Host = getEnvOrDefault("SMTP_HOST", "smtp.gmail.com")
	cfg.SMTP.Username = os.Getenv("EMAIL_ADDRESS")
	cfg.SMTP.Password = os.Getenv("EMAIL_PASSWORD")
	smtpPort, err := parseInt("SMTP_PORT", 465)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SMTP.Port = smtpPort
	}

	// Notification dispatch
	workers, err := parseInt("NOTIFY_WORKERS", 4)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NotifyWorkers = workers
	}

	queueSize, err := parseInt("NOTIFY_QUEUE_SIZE", 256)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NotifyQueueSize = queueSize
	}

	notifyTimeout, err := parseDuration("NOTIFY_TIMEOUT", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.NotifyTimeout = notifyTimeout
	}

	if err := cfg.validateRanges(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.CraftTokenMintAddress == "" {
		errs = append(errs, fmt.Errorf("CraftTokenMintAddress is required"))
	}

	if c.TemporalEnabled {
		if c.TemporalHost == "" {
			errs = append(errs, fmt.Errorf("TemporalHost is required"))
		}
		if c.TemporalNamespace == "" {
			errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
		}
		if c.TemporalTaskQueue == "" {
			errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
		}
	}

	if err := c.validateRanges(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RecipientAccount returns the configured treasury address, or "" when no
// identity is available.
func (c *Config) RecipientAccount() string {
	if c.Identity == nil {
		return ""
	}
	return c.Identity.PublicKey().String()
}

func (c *Config) validateRanges() error {
	if c.VerifyTimeout < time.Second {
		return fmt.Errorf("VERIFY_TIMEOUT must be at least 1 second")
	}
	if c.IssueTimeout < time.Second {
		return fmt.Errorf("ISSUE_TIMEOUT must be at least 1 second")
	}
	if c.NotifyWorkers < 1 {
		return fmt.Errorf("NOTIFY_WORKERS must be at least 1")
	}
	if c.NotifyQueueSize < 1 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be at least 1")
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
