package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"omnivault/crypto"
	"omnivault/native/bridge"
	"omnivault/native/strategy"
)

// Config is the top-level vaultd configuration.
type Config struct {
	RPCAddress    string `toml:"RPCAddress"`
	DataDir       string `toml:"DataDir"`
	LogFile       string `toml:"LogFile"`
	OperatorToken string `toml:"OperatorToken"`
	// LocalDomain identifies the execution domain this node serves.
	LocalDomain uint64 `toml:"LocalDomain"`
	// RouterAddress is the bech32 identity of the local router; remote
	// domains configure it as their trusted sender.
	RouterAddress string `toml:"RouterAddress"`
	// RelayURL is the external transport endpoint outbound envelopes are
	// handed to. Empty means outbound messages are logged and dropped.
	RelayURL string `toml:"RelayURL"`

	Vault    VaultConfig      `toml:"Vault"`
	Strategy strategy.Config  `toml:"Strategy"`
	Bridge   bridge.FeeConfig `toml:"Bridge"`
	Domains  []DomainEntry    `toml:"Domains"`
}

// VaultConfig carries the vault engine tunables.
type VaultConfig struct {
	// BatchThresholdWei is the deposit size that hints an eager strategy
	// evaluation. Empty disables the hint.
	BatchThresholdWei string `toml:"BatchThresholdWei"`
	// RiskTolerance is the upper risk score bound handed to the strategy
	// engine by the rebalance trigger.
	RiskTolerance uint8 `toml:"RiskTolerance"`
}

// DomainEntry configures one remote execution domain.
type DomainEntry struct {
	DomainID     uint64 `toml:"DomainID"`
	RemoteVault  string `toml:"RemoteVault"`
	RemoteRouter string `toml:"RemoteRouter"`
	GasLimit     uint64 `toml:"GasLimit"`
	Enabled      bool   `toml:"Enabled"`
}

// BatchThreshold parses the eager-evaluation deposit threshold. A nil result
// means the hint is disabled.
func (v VaultConfig) BatchThreshold() (*big.Int, error) {
	raw := strings.TrimSpace(v.BatchThresholdWei)
	if raw == "" {
		return nil, nil
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("config: invalid BatchThresholdWei %q", raw)
	}
	return value, nil
}

// DomainConfig converts a TOML domain entry into the router's runtime form.
func (d DomainEntry) DomainConfig() (bridge.DomainConfig, error) {
	cfg := bridge.DomainConfig{
		DomainID: d.DomainID,
		GasLimit: d.GasLimit,
		Enabled:  d.Enabled,
	}
	vaultAddr, err := crypto.DecodeAddress(strings.TrimSpace(d.RemoteVault))
	if err != nil {
		return cfg, fmt.Errorf("config: domain %d RemoteVault: %w", d.DomainID, err)
	}
	routerAddr, err := crypto.DecodeAddress(strings.TrimSpace(d.RemoteRouter))
	if err != nil {
		return cfg, fmt.Errorf("config: domain %d RemoteRouter: %w", d.DomainID, err)
	}
	copy(cfg.RemoteVault[:], vaultAddr.Bytes())
	copy(cfg.RemoteRouter[:], routerAddr.Bytes())
	return cfg, nil
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./vaultd-data"
	}
	if cfg.LocalDomain == 0 {
		cfg.LocalDomain = 1
	}
	if cfg.Vault.RiskTolerance == 0 {
		cfg.Vault.RiskTolerance = 30
	}
	if cfg.Domains == nil {
		cfg.Domains = []DomainEntry{}
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
