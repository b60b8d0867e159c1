package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"questchain/crypto"
)

const (
	defaultChainID       = 187
	defaultListenAddress = ":8545"
)

// Load loads the configuration from the given path, creating a default file
// and operator keystore when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./quest-data"
	}
	if cfg.ChainID == 0 {
		cfg.ChainID = defaultChainID
	}
	if cfg.RPC.RequestsPerSecond <= 0 {
		cfg.RPC.RequestsPerSecond = 20
	}
	if cfg.RPC.Burst <= 0 {
		cfg.RPC.Burst = 40
	}
	if cfg.RPC.ReadTimeout <= 0 {
		cfg.RPC.ReadTimeout = 15
	}
	if cfg.RPC.WriteTimeout <= 0 {
		cfg.RPC.WriteTimeout = 15
	}
	if cfg.RPC.MaxSkewSeconds <= 0 {
		cfg.RPC.MaxSkewSeconds = 300
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.OperatorKeystore
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.OperatorKeystore != keystorePath {
		cfg.OperatorKeystore = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault writes a single-operator development configuration. The
// operator key owns both contracts; guards and the backend authority must be
// filled in before the node can settle batches or approve withdrawals.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, ""); err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenAddress:    defaultListenAddress,
		DataDir:          "./quest-data",
		Environment:      "dev",
		ChainID:          defaultChainID,
		OperatorKeystore: keystorePath,
		Contracts: Contracts{
			NFT:      crypto.FromRaw([20]byte{0x0E, 0x01}).String(),
			Campaign: crypto.FromRaw([20]byte{0x0E, 0x02}).String(),
		},
		Governance: Governance{CreationFee: "0"},
	}
	applyDefaults(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
