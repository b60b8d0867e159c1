package settlementd

import (
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"questchain/crypto"
	"questchain/native/campaign"
	"questchain/observability/logging"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for settlementd.
type Config struct {
	ListenAddress    string             `yaml:"listen"`
	Environment      string             `yaml:"environment"`
	ChainID          string             `yaml:"chain_id"`
	CampaignContract string             `yaml:"campaign_contract"`
	MaxBatch         int                `yaml:"max_batch"`
	Database         DatabaseConfig     `yaml:"database"`
	Signer           SignerConfig       `yaml:"signer"`
	Auth             AuthConfig         `yaml:"auth"`
	Node             NodeConfig         `yaml:"node"`
	RateLimit        RateLimitConfig    `yaml:"rate_limit"`
	Log              logging.FileOutput `yaml:"log"`
	Telemetry        TelemetryConfig    `yaml:"telemetry"`
}

// DatabaseConfig selects the completion store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SignerConfig locates the backend authority key.
type SignerConfig struct {
	Keystore      string `yaml:"keystore"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

// AuthConfig configures bearer token verification for task verifiers.
type AuthConfig struct {
	HMACSecret    string   `yaml:"hmac_secret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	ScopeClaim    string   `yaml:"scope_claim"`
	ClockSkew     Duration `yaml:"clock_skew"`
}

// NodeConfig points at a questd RPC endpoint used to read account nonces.
// Leaving the endpoint empty trusts the nonce supplied by the caller.
type NodeConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps"`
	Burst             int     `yaml:"burst"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
	Headers  string `yaml:"headers"`
	Traces   bool   `yaml:"traces"`
	Metrics  bool   `yaml:"metrics"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.Environment == "" {
		cfg.Environment = "dev"
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 64
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "settlementd.db"
	}
	if cfg.Signer.PassphraseEnv == "" {
		cfg.Signer.PassphraseEnv = "SETTLEMENTD_PASSPHRASE"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.Node.Timeout.Duration == 0 {
		cfg.Node.Timeout.Duration = 5 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 10
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 20
	}
}

func validateConfig(cfg Config) error {
	if _, err := cfg.Domain(); err != nil {
		return err
	}
	if cfg.MaxBatch > campaign.MaxBatchSize {
		return fmt.Errorf("max_batch must not exceed %d", campaign.MaxBatchSize)
	}
	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("database dsn must be configured")
	}
	if strings.TrimSpace(cfg.Signer.Keystore) == "" {
		return fmt.Errorf("signer keystore must be configured")
	}
	if cfg.Auth.HMACSecret == "" {
		return fmt.Errorf("auth hmac secret must be configured")
	}
	return nil
}

// Domain returns the authorization domain described by the chain id and the
// campaign contract address.
func (c Config) Domain() (*campaign.Domain, error) {
	chainID, ok := new(big.Int).SetString(strings.TrimSpace(c.ChainID), 10)
	if !ok || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain_id must be a positive integer")
	}
	contract, err := crypto.ParseAccount(c.CampaignContract)
	if err != nil {
		return nil, fmt.Errorf("campaign_contract: %w", err)
	}
	return &campaign.Domain{ChainID: chainID, Contract: contract}, nil
}

func (a *AuthConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("auth configuration missing")
	}
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	a.HMACSecretEnv = strings.TrimSpace(a.HMACSecretEnv)
	if a.HMACSecret != "" || a.HMACSecretEnv == "" {
		return nil
	}
	value := strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
	if value == "" {
		return fmt.Errorf("hmac_secret_env %s is empty", a.HMACSecretEnv)
	}
	a.HMACSecret = value
	return nil
}
