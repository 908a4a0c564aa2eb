package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AzrielTheHellrazor/polymarket-agent/syncer"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr)
	}
	if cfg.Chain.WindowBlocks != 1000 || cfg.Chain.LookbackBlocks != 1000 {
		t.Errorf("default windows = %d/%d", cfg.Chain.WindowBlocks, cfg.Chain.LookbackBlocks)
	}
	if cfg.Metadata.TTL != 60*time.Minute {
		t.Errorf("default metadata ttl = %v", cfg.Metadata.TTL)
	}
	if cfg.Copy.Strategy != syncer.StrategyExact {
		t.Errorf("default strategy = %q", cfg.Copy.Strategy)
	}
	if len(cfg.Chain.ExchangeContracts) != 2 {
		t.Errorf("expected both exchange contracts, got %v", cfg.Chain.ExchangeContracts)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  addr: ":9090"
chain:
  rpc_url: "https://polygon-rpc.example"
  window_blocks: 500
copy:
  strategy: scaled
  scale_factor: 0.25
  max_daily_loss: 50
executor:
  url: "http://localhost:3000"
wallets:
  - address: "0x1111111111111111111111111111111111111111"
    enabled: true
    strategy: adaptive
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Chain.WindowBlocks != 500 {
		t.Errorf("window_blocks = %d", cfg.Chain.WindowBlocks)
	}
	if cfg.Copy.Strategy != syncer.StrategyScaled || cfg.Copy.ScaleFactor != 0.25 {
		t.Errorf("copy config = %+v", cfg.Copy)
	}
	if len(cfg.Wallets) != 1 || cfg.Wallets[0].Strategy != "adaptive" || !cfg.Wallets[0].Enabled {
		t.Errorf("wallets = %+v", cfg.Wallets)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("missing rpc_url should fail validation")
	}
	cfg.Chain.RPCURL = "https://polygon-rpc.example"
	if err := cfg.Validate(); err == nil {
		t.Error("missing executor url should fail validation")
	}
	cfg.Executor.URL = "http://localhost:3000"
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RPC_URL", "https://env-rpc.example")
	t.Setenv("EXECUTOR_URL", "http://env-executor:3000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Chain.RPCURL != "https://env-rpc.example" {
		t.Errorf("rpc_url = %q", cfg.Chain.RPCURL)
	}
	if cfg.Executor.URL != "http://env-executor:3000" {
		t.Errorf("executor url = %q", cfg.Executor.URL)
	}
}
