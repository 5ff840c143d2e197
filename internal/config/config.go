// Package config loads scanner configuration from a YAML file with
// environment-variable overrides layered on top, so RPC secrets can
// stay out of the config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// mainnetChainID is the only chain id this scanner currently accepts.
const mainnetChainID = 1

// defaultGenesisBlock is the Aave V3 mainnet deployment's neighborhood
// block, overridable via config or the SCANNER_GENESIS_BLOCK env var.
const defaultGenesisBlock = 16_000_000

// Config is the scanner's fully resolved runtime configuration.
type Config struct {
	Chain        string   `yaml:"chain"`
	RPCEndpoints []string `yaml:"rpc_endpoints"`

	AavePoolAddress   string `yaml:"aave_pool_address"`
	AaveOracleAddress string `yaml:"aave_oracle_address"`
	GenesisBlock      uint64 `yaml:"genesis_block"`

	ScanIntervalSec   int  `yaml:"scan_interval_sec"`
	SkipInitialScan   bool `yaml:"skip_initial_scan"`
	DisableBackground bool `yaml:"disable_background_services"`

	CSVPath         string `yaml:"csv_path"`
	StatusPath      string `yaml:"status_path"`
	DailyCSVPath    string `yaml:"daily_csv_path"`
	DailyStatusPath string `yaml:"daily_status_path"`

	PriceCacheDSN string `yaml:"price_cache_dsn"`

	RPCBaseTimeoutMs int `yaml:"rpc_base_timeout_ms"`
}

// defaults returns the baseline configuration; every field can still
// be overridden by YAML or environment.
func defaults() Config {
	return Config{
		Chain:            "ethereum",
		AavePoolAddress:  "0x87870Bca3F3fD6335C3F4ce8392D69350B4fA4E2",
		GenesisBlock:     defaultGenesisBlock,
		ScanIntervalSec:  60,
		CSVPath:          "data/liquidations.csv",
		StatusPath:       "data/scan_status.json",
		DailyCSVPath:     "data/eth_daily_prices.csv",
		DailyStatusPath:  "data/eth_daily_status.json",
		RPCBaseTimeoutMs: 8000,
	}
}

// Load reads path (if it exists) into a Config seeded with defaults,
// then layers environment overrides on top. .env is loaded first, best
// effort, so RPC API keys can live outside the YAML file.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if urls := buildRPCURLs(); len(urls) > 0 {
		cfg.RPCEndpoints = urls
	}
	if v := os.Getenv("SCANNER_CHAIN"); v != "" {
		cfg.Chain = v
	}
	if v := os.Getenv("SCANNER_GENESIS_BLOCK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.GenesisBlock = n
		}
	}
	if v := os.Getenv("SCANNER_SCAN_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ScanIntervalSec = n
		}
	}
	if v := os.Getenv("SCANNER_SKIP_INITIAL_SCAN"); v != "" {
		cfg.SkipInitialScan = parseBool(v)
	}
	if v := os.Getenv("SCANNER_DISABLE_BACKGROUND"); v != "" {
		cfg.DisableBackground = parseBool(v)
	}
	if v := os.Getenv("SCANNER_PRICE_CACHE_DSN"); v != "" {
		cfg.PriceCacheDSN = v
	}
	if v := os.Getenv("SCANNER_CSV_PATH"); v != "" {
		cfg.CSVPath = v
	}
}

// buildRPCURLs assembles the endpoint list from SCANNER_RPC_URLS (a
// comma-separated literal list) plus templated Alchemy/Infura entries
// when only an API key is provided.
func buildRPCURLs() []string {
	var urls []string
	if raw := os.Getenv("SCANNER_RPC_URLS"); raw != "" {
		for _, u := range strings.Split(raw, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				urls = append(urls, u)
			}
		}
	}
	if key := os.Getenv("ALCHEMY_API_KEY"); key != "" {
		urls = append(urls, fmt.Sprintf("https://eth-mainnet.g.alchemy.com/v2/%s", key))
	}
	if key := os.Getenv("INFURA_API_KEY"); key != "" {
		urls = append(urls, fmt.Sprintf("https://mainnet.infura.io/v3/%s", key))
	}
	return urls
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Validate rejects configurations the scanner cannot start under: no
// providers configured, or an unsupported chain.
func (c *Config) Validate() error {
	if len(c.RPCEndpoints) == 0 {
		return fmt.Errorf("config: no RPC providers configured")
	}
	if c.Chain != "ethereum" {
		return fmt.Errorf("config: unsupported chain %q (only \"ethereum\" is supported)", c.Chain)
	}
	return nil
}

// ChainID is the remote chain id every RPC endpoint must report.
func (c *Config) ChainID() int64 {
	return mainnetChainID
}

// ScanInterval is the Scheduler tick interval.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSec) * time.Second
}

// RPCBaseTimeout is the per-attempt base timeout passed to ProviderPool.Acquire.
func (c *Config) RPCBaseTimeout() time.Duration {
	return time.Duration(c.RPCBaseTimeoutMs) * time.Millisecond
}
