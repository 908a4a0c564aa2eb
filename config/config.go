// Package config loads the agent configuration from a yaml file with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/syncer"
)

type ServerConfig struct {
	Addr     string `yaml:"addr"`
	AuthUser string `yaml:"auth_user"`
	AuthPass string `yaml:"auth_pass"`
}

type ChainConfig struct {
	RPCURL            string        `yaml:"rpc_url"`
	WSURL             string        `yaml:"ws_url"`
	ExchangeContracts []string      `yaml:"exchange_contracts"`
	TransferContracts []string      `yaml:"transfer_contracts"`
	WindowBlocks      uint64        `yaml:"window_blocks"`
	LookbackBlocks    uint64        `yaml:"lookback_blocks"`
	FromBlock         uint64        `yaml:"from_block"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

type MetadataConfig struct {
	ClobURL    string        `yaml:"clob_url"`
	GammaURL   string        `yaml:"gamma_url"`
	DataAPIURL string        `yaml:"data_api_url"`
	TTL        time.Duration `yaml:"ttl"`
}

type ExecutorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	RedisAddr       string        `yaml:"redis_addr"`
	PublishInterval time.Duration `yaml:"publish_interval"`
}

type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Chain    ChainConfig            `yaml:"chain"`
	Copy     syncer.EngineConfig    `yaml:"copy"`
	Metadata MetadataConfig         `yaml:"metadata"`
	Executor ExecutorConfig         `yaml:"executor"`
	Metrics  MetricsConfig          `yaml:"metrics"`
	Wallets  []models.WatchedWallet `yaml:"wallets"`
}

// Default returns a config with all defaults applied and no wallets.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the yaml file at path. A missing path (empty string) yields the
// defaults so the agent can run purely from environment variables.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

// applyEnv lets deployment values override the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("RPC_URL"); v != "" {
		c.Chain.RPCURL = v
	}
	if v := os.Getenv("WS_URL"); v != "" {
		c.Chain.WSURL = v
	}
	if v := os.Getenv("EXECUTOR_URL"); v != "" {
		c.Executor.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Metrics.RedisAddr = v
	}
	if v := os.Getenv("WALLET_ADDRESS"); v != "" {
		c.Copy.WalletAddress = v
	}
	if v := os.Getenv("API_AUTH_USER"); v != "" {
		c.Server.AuthUser = v
	}
	if v := os.Getenv("API_AUTH_PASS"); v != "" {
		c.Server.AuthPass = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if len(c.Chain.ExchangeContracts) == 0 {
		c.Chain.ExchangeContracts = []string{
			syncer.CTFExchangeAddress,
			syncer.NegRiskCTFExchangeAddress,
		}
	}
	if len(c.Chain.TransferContracts) == 0 {
		c.Chain.TransferContracts = []string{syncer.ConditionalTokensAddress}
	}
	if c.Chain.WindowBlocks == 0 {
		c.Chain.WindowBlocks = 1000
	}
	if c.Chain.LookbackBlocks == 0 {
		c.Chain.LookbackBlocks = 1000
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = 5 * time.Second
	}
	if c.Metadata.TTL == 0 {
		c.Metadata.TTL = 60 * time.Minute
	}
	if c.Executor.Timeout == 0 {
		c.Executor.Timeout = 30 * time.Second
	}
	if c.Metrics.PublishInterval == 0 {
		c.Metrics.PublishInterval = 30 * time.Second
	}
	if c.Copy.Strategy == "" {
		c.Copy.Strategy = syncer.StrategyExact
	}
}

// Validate catches the config mistakes a startup should refuse to run with.
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return &syncer.ConfigurationError{Field: "rpc_url", Reason: "required"}
	}
	if c.Executor.URL == "" {
		return &syncer.ConfigurationError{Field: "executor.url", Reason: "required"}
	}
	if !syncer.ValidStrategy(c.Copy.Strategy) {
		return &syncer.ConfigurationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", c.Copy.Strategy)}
	}
	return nil
}
