package nft

import "math/big"

// Tier is a mintable membership variant.
type Tier struct {
	ID        uint64   `json:"id"`
	Name      string   `json:"name"`
	Price     *big.Int `json:"price"`
	MaxSupply uint64   `json:"maxSupply"`
	Minted    uint64   `json:"minted"`
	PoolLimit uint64   `json:"poolLimit"`
	URI       string   `json:"uri"`
	Active    bool     `json:"active"`
	FreeMints uint64   `json:"freeMints"`
}

// Clone returns a deep copy of the tier.
func (t *Tier) Clone() *Tier {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Price = newBigInt(t.Price)
	return &clone
}

// Remaining reports how many units can still be minted.
func (t *Tier) Remaining() uint64 {
	if t == nil || t.Minted >= t.MaxSupply {
		return 0
	}
	return t.MaxSupply - t.Minted
}

// TierInput carries the administrator-supplied tier fields.
type TierInput struct {
	Name      string   `json:"name"`
	Price     *big.Int `json:"price"`
	MaxSupply uint64   `json:"maxSupply"`
	PoolLimit uint64   `json:"poolLimit"`
	URI       string   `json:"uri"`
	FreeMints uint64   `json:"freeMints"`
}

// MintRecord captures the per-account, per-tier mint flags.
type MintRecord struct {
	Minted       bool `json:"minted"`
	UsedFreeMint bool `json:"usedFreeMint"`
}

// Token is an issued membership NFT.
type Token struct {
	ID     uint64   `json:"id"`
	Owner  [20]byte `json:"owner"`
	TierID uint64   `json:"tierId"`
	URI    string   `json:"uri"`
	// MintedAt is the unix time of issuance.
	MintedAt uint64 `json:"mintedAt"`
}

// MintPath identifies how a unit was obtained.
type MintPath string

const (
	MintPathPaid      MintPath = "paid"
	MintPathFree      MintPath = "free"
	MintPathWhitelist MintPath = "whitelist"
)

// MintResult is returned from successful mints.
type MintResult struct {
	TokenID uint64   `json:"tokenId"`
	TierID  uint64   `json:"tierId"`
	Path    MintPath `json:"path"`
	Charged *big.Int `json:"charged"`
	Level   uint64   `json:"level"`
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
