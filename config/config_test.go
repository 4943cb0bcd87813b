package config

import (
	"bytes"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"omnivault/crypto"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func testAddressString(b byte) string {
	return crypto.NewAddress(crypto.VaultPrefix, bytes.Repeat([]byte{b}, 20)).String()
}

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RPCAddress != "127.0.0.1:8645" || cfg.DataDir != "./vaultd-data" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LocalDomain != 1 || cfg.Vault.RiskTolerance != 30 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// The generated file must load back cleanly.
	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.RPCAddress != cfg.RPCAddress {
		t.Fatalf("reload mismatch: %+v", again)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	remote := testAddressString(0x22)
	path := writeConfig(t, `
RPCAddress = "0.0.0.0:9000"
DataDir = "/var/lib/vaultd"
OperatorToken = "secret"
LocalDomain = 5
RelayURL = "http://relay.internal:8080"

[Vault]
BatchThresholdWei = "1000000000000000000"
RiskTolerance = 60

[Strategy]
MinDifferentialBps = 75

[Bridge]
BaseFeeWei = "1000"
PerByteFeeWei = "10"

[[Domains]]
DomainID = 2
RemoteVault = "`+remote+`"
RemoteRouter = "`+remote+`"
GasLimit = 400000
Enabled = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.RPCAddress != "0.0.0.0:9000" || cfg.LocalDomain != 5 || cfg.OperatorToken != "secret" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Vault.RiskTolerance != 60 || cfg.Strategy.MinDifferentialBps != 75 {
		t.Fatalf("unexpected module config: %+v", cfg)
	}

	threshold, err := cfg.Vault.BatchThreshold()
	if err != nil {
		t.Fatalf("threshold parse failed: %v", err)
	}
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	if threshold.Cmp(want) != 0 {
		t.Fatalf("unexpected threshold %s", threshold)
	}

	fees, err := cfg.Bridge.Parameters()
	if err != nil {
		t.Fatalf("fee parse failed: %v", err)
	}
	if fees.BaseFee.Cmp(big.NewInt(1000)) != 0 || fees.PerByteFee.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("unexpected fees: %+v", fees)
	}

	if len(cfg.Domains) != 1 {
		t.Fatalf("expected one domain, got %d", len(cfg.Domains))
	}
	domain, err := cfg.Domains[0].DomainConfig()
	if err != nil {
		t.Fatalf("domain decode failed: %v", err)
	}
	if domain.DomainID != 2 || !domain.Enabled || domain.GasLimit != 400000 {
		t.Fatalf("unexpected domain: %+v", domain)
	}
	if domain.RemoteRouter != [20]byte(bytes.Repeat([]byte{0x22}, 20)) {
		t.Fatalf("remote router mismatch: %x", domain.RemoteRouter)
	}
}

func TestBatchThresholdValidation(t *testing.T) {
	if threshold, err := (VaultConfig{}).BatchThreshold(); err != nil || threshold != nil {
		t.Fatalf("empty threshold must disable the hint, got %v err=%v", threshold, err)
	}
	if _, err := (VaultConfig{BatchThresholdWei: "not-a-number"}).BatchThreshold(); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := (VaultConfig{BatchThresholdWei: "-5"}).BatchThreshold(); err == nil {
		t.Fatalf("expected rejection of negative threshold")
	}
}

func TestDomainEntryRejectsBadAddress(t *testing.T) {
	entry := DomainEntry{DomainID: 2, RemoteVault: "nonsense", RemoteRouter: testAddressString(0x01)}
	if _, err := entry.DomainConfig(); err == nil {
		t.Fatalf("expected decode error for bad RemoteVault")
	}
}
