package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"questchain/crypto"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadCreatesDefaultWithKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "questd", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChainID != defaultChainID || cfg.ListenAddress != defaultListenAddress {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if _, err := os.Stat(cfg.OperatorKeystore); err != nil {
		t.Fatalf("keystore not created: %v", err)
	}
	if _, err := crypto.LoadFromKeystore(cfg.OperatorKeystore, ""); err != nil {
		t.Fatalf("keystore not readable with empty passphrase: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.OperatorKeystore != cfg.OperatorKeystore || again.Contracts != cfg.Contracts {
		t.Fatalf("reload changed config: %+v vs %+v", again, cfg)
	}
}

func TestLoadParsesGovernanceAndAllocations(t *testing.T) {
	dir := t.TempDir()
	guard1 := crypto.FromRaw([20]byte{0x11}).String()
	guard2 := fmt.Sprintf("0x%040x", 0x22)
	path := writeConfig(t, dir, fmt.Sprintf(`ListenAddress = "127.0.0.1:9545"
ChainID = 99
OperatorKeystorePath = "%s"

[contracts]
NFT = "%s"
Campaign = "%s"

[governance]
Guard1 = "%s"
Guard2 = "%s"
CreationFee = "15"

[[allocations]]
Account = "%s"
Asset = "usdc"
Amount = "500"

[rpc]
RequestsPerSecond = 5.5
`, filepath.Join(dir, "op.keystore"),
		crypto.FromRaw([20]byte{0xE1}).String(),
		crypto.FromRaw([20]byte{0xE2}).String(),
		guard1, guard2, guard1))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPC.RequestsPerSecond != 5.5 || cfg.RPC.Burst != 40 {
		t.Fatalf("unexpected rpc settings %+v", cfg.RPC)
	}
	rt, err := cfg.Runtime()
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	if rt.ChainID.Uint64() != 99 || rt.CreationFee.Int64() != 15 {
		t.Fatalf("unexpected runtime %+v", rt)
	}
	if rt.Guard1 != ([20]byte{0x11}) || rt.Guard2[19] != 0x22 || !rt.GuardsConfigured() {
		t.Fatalf("guards not parsed: %x %x", rt.Guard1, rt.Guard2)
	}
	if len(rt.Allocations) != 1 || rt.Allocations[0].Asset != "USDC" || rt.Allocations[0].Amount.Int64() != 500 {
		t.Fatalf("unexpected allocations %+v", rt.Allocations)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	nft := crypto.FromRaw([20]byte{0xE1}).String()
	cases := map[string]string{
		"unknown key": `Bogus = 1`,
		"same contracts": fmt.Sprintf(`[contracts]
NFT = "%s"
Campaign = "%s"`, nft, nft),
		"bad fee": fmt.Sprintf(`[contracts]
NFT = "%s"
Campaign = "%s"
[governance]
CreationFee = "-1"`, nft, crypto.FromRaw([20]byte{0xE2}).String()),
		"bad guard": fmt.Sprintf(`[contracts]
NFT = "%s"
Campaign = "%s"
[governance]
Guard1 = "not-an-address"`, nft, crypto.FromRaw([20]byte{0xE2}).String()),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeConfig(t, dir, body)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			} else if name != "unknown key" && !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
