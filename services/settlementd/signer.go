package settlementd

import (
	"context"
	"fmt"
	"os"
	"time"

	"questchain/crypto"
	"questchain/native/campaign"
	"questchain/observability/metrics"
	"questchain/rpc"
)

// Signer produces batch authorizations with the backend authority key.
type Signer struct {
	key    *crypto.PrivateKey
	domain *campaign.Domain
}

// NewSigner binds a key to the campaign contract domain.
func NewSigner(key *crypto.PrivateKey, domain *campaign.Domain) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("signer key required")
	}
	if domain == nil {
		return nil, fmt.Errorf("authorization domain required")
	}
	return &Signer{key: key, domain: domain}, nil
}

// LoadSigner decrypts the keystore named in cfg using the passphrase held in
// the configured environment variable.
func LoadSigner(cfg SignerConfig, domain *campaign.Domain) (*Signer, error) {
	passphrase := os.Getenv(cfg.PassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%s is empty", cfg.PassphraseEnv)
	}
	key, err := crypto.LoadFromKeystore(cfg.Keystore, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load signer keystore: %w", err)
	}
	return NewSigner(key, domain)
}

// Address returns the authority address the contract must be configured with.
func (s *Signer) Address() [20]byte {
	return s.key.PubKey().Address().Raw()
}

// Sign returns a SignFunc for the account and nonce.
func (s *Signer) Sign(account [20]byte, nonce uint64) SignFunc {
	return func(campaignIDs []uint64) ([]byte, [32]byte, error) {
		start := time.Now()
		sig, err := s.domain.SignAuthorization(s.key, account, campaignIDs, nonce)
		metrics.Settlementd().ObserveSign(time.Since(start))
		if err != nil {
			return nil, [32]byte{}, err
		}
		return sig, campaign.BatchDigest(account, campaignIDs, nonce), nil
	}
}

// NonceSource reports the settlement nonce the contract expects next.
type NonceSource interface {
	Nonce(ctx context.Context, account [20]byte) (uint64, error)
}

// NodeNonces reads nonces from a questd RPC endpoint.
type NodeNonces struct {
	client  *rpc.Client
	timeout time.Duration
}

// NewNodeNonces returns a nonce source backed by the questd endpoint.
func NewNodeNonces(cfg NodeConfig) *NodeNonces {
	return &NodeNonces{client: rpc.NewClient(cfg.Endpoint, nil), timeout: cfg.Timeout.Duration}
}

// Nonce implements NonceSource.
func (n *NodeNonces) Nonce(ctx context.Context, account [20]byte) (uint64, error) {
	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	var out struct {
		Nonce uint64 `json:"nonce"`
	}
	params := map[string]string{"account": crypto.FromRaw(account).String()}
	if err := n.client.Call(ctx, "campaign_nonce", params, &out); err != nil {
		return 0, fmt.Errorf("query nonce: %w", err)
	}
	return out.Nonce, nil
}
