package config

import "questchain/observability/logging"

// Contracts names the accounts that hold NFT proceeds and campaign escrow.
type Contracts struct {
	NFT      string `toml:"NFT"`
	Campaign string `toml:"Campaign"`
}

// Governance lists the approval guards and the settlement signer. Addresses
// may be bech32 (qst1...) or 0x-prefixed hex.
type Governance struct {
	Guard1           string `toml:"Guard1"`
	Guard2           string `toml:"Guard2"`
	BackendAuthority string `toml:"BackendAuthority"`
	// CreationFee is the native campaign creation fee in base units.
	CreationFee string `toml:"CreationFee"`
}

// Allocation credits a balance on first boot.
type Allocation struct {
	Account string `toml:"Account"`
	Asset   string `toml:"Asset"`
	Amount  string `toml:"Amount"`
}

// RPC tunes the HTTP API.
type RPC struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
	ReadTimeout       int     `toml:"ReadTimeoutSeconds"`
	WriteTimeout      int     `toml:"WriteTimeoutSeconds"`
	// MaxSkewSeconds bounds the age of signed requests.
	MaxSkewSeconds int64 `toml:"MaxSkewSeconds"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
	Headers  string `toml:"Headers"`
}

// Config is the questd node configuration.
type Config struct {
	ListenAddress    string             `toml:"ListenAddress"`
	DataDir          string             `toml:"DataDir"`
	Environment      string             `toml:"Environment"`
	ChainID          uint64             `toml:"ChainID"`
	OperatorKeystore string             `toml:"OperatorKeystorePath"`
	Contracts        Contracts          `toml:"contracts"`
	Governance       Governance         `toml:"governance"`
	Allocations      []Allocation       `toml:"allocations"`
	RPC              RPC                `toml:"rpc"`
	Telemetry        Telemetry          `toml:"telemetry"`
	Log              logging.FileOutput `toml:"log"`
}
