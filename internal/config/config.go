package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/kqqdhrxd-society/zama-fhe-anonymousCheckIn/internal/ledger/retry"
)

// SepoliaChainID is the default target network.
const SepoliaChainID = 11155111

// Config is read once at startup and never mutated afterwards.
type Config struct {
	// Deployment outputs
	RPCURL          string `env:"CHECKIN_RPC_URL"`
	ContractAddress string `env:"CHECKIN_CONTRACT_ADDRESS"`
	Deployer        string `env:"CHECKIN_DEPLOYER"`

	// Target network, used for verification and wallet chain registration
	ChainID          uint64 `env:"CHECKIN_CHAIN_ID"`
	ChainName        string `env:"CHECKIN_CHAIN_NAME"`
	CurrencyName     string `env:"CHECKIN_CURRENCY_NAME"`
	CurrencySymbol   string `env:"CHECKIN_CURRENCY_SYMBOL"`
	CurrencyDecimals uint8  `env:"CHECKIN_CURRENCY_DECIMALS"`
	ExplorerURL      string `env:"CHECKIN_EXPLORER_URL"`

	// Interactive wallet endpoint (EIP-1193 over JSON-RPC). Empty = read-only.
	WalletURL string `env:"CHECKIN_WALLET_URL"`

	// Submission journal. Empty disables it.
	DatabaseURL string `env:"DATABASE_URL"`

	LogLevel string `env:"LOG_LEVEL"`
	APIPort  int    `env:"API_PORT"`

	ScanConcurrency     int           `env:"CHECKIN_SCAN_CONCURRENCY"`
	MaxScan             uint64        `env:"CHECKIN_MAX_SCAN"`
	ReceiptPollInterval time.Duration `env:"CHECKIN_RECEIPT_POLL_INTERVAL"`
	ConfirmTimeout      time.Duration `env:"CHECKIN_CONFIRM_TIMEOUT"`
	AccountPollInterval time.Duration `env:"CHECKIN_ACCOUNT_POLL_INTERVAL"`

	Retry retry.Config
}

// deployment is the file written by the deployment step
type deployment struct {
	Network         string `toml:"network"`
	ContractAddress string `toml:"contract_address"`
	Deployer        string `toml:"deployer"`
	ChainID         uint64 `toml:"chain_id"`
}

// Default returns the configuration before any file or environment is applied.
func Default() *Config {
	return &Config{
		RPCURL:              "https://sepolia.drpc.org",
		ChainID:             SepoliaChainID,
		ChainName:           "Sepolia",
		CurrencyName:        "Sepolia Ether",
		CurrencySymbol:      "ETH",
		CurrencyDecimals:    18,
		ExplorerURL:         "https://sepolia.etherscan.io",
		LogLevel:            "info",
		APIPort:             8080,
		ScanConcurrency:     8,
		MaxScan:             10_000,
		ReceiptPollInterval: 2 * time.Second,
		ConfirmTimeout:      3 * time.Minute,
		AccountPollInterval: 2 * time.Second,
		Retry:               retry.DefaultConfig(),
	}
}

// Load builds the configuration from defaults, the deployment file and the
// environment (including .env), in that order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := os.Getenv("CHECKIN_DEPLOYMENT_FILE")
	if path == "" {
		path = "deployment.toml"
	}
	if err := cfg.applyDeploymentFile(path); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDeploymentFile(path string) error {
	var d deployment
	if _, err := toml.DecodeFile(path, &d); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read deployment file %s: %w", path, err)
	}
	if d.Network != "" {
		c.RPCURL = d.Network
	}
	if d.ContractAddress != "" {
		c.ContractAddress = d.ContractAddress
	}
	if d.Deployer != "" {
		c.Deployer = d.Deployer
	}
	if d.ChainID != 0 {
		c.ChainID = d.ChainID
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("CHECKIN_RPC_URL is required")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("CHECKIN_CONTRACT_ADDRESS %q is not a valid address", c.ContractAddress)
	}
	if c.Deployer != "" && !common.IsHexAddress(c.Deployer) {
		return fmt.Errorf("CHECKIN_DEPLOYER %q is not a valid address", c.Deployer)
	}
	if c.ChainID == 0 {
		return fmt.Errorf("CHECKIN_CHAIN_ID is required")
	}
	if c.ScanConcurrency <= 0 {
		return fmt.Errorf("CHECKIN_SCAN_CONCURRENCY must be positive")
	}
	if c.MaxScan == 0 {
		return fmt.Errorf("CHECKIN_MAX_SCAN must be positive")
	}
	if c.ReceiptPollInterval <= 0 || c.ConfirmTimeout <= 0 {
		return fmt.Errorf("receipt poll interval and confirm timeout must be positive")
	}
	return nil
}

// Contract returns the configured contract address
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}
