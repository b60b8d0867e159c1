package campaign

import "math/big"

// Campaign is a funded reward pool. Share is Escrow divided by Target and
// Distributed always equals Completed multiplied by Share.
type Campaign struct {
	ID          uint64   `json:"id"`
	Creator     [20]byte `json:"creator"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Asset string `json:"asset"`
	Active      bool     `json:"active"`
	// Closed is set once the remaining escrow was refunded.
	Closed      bool     `json:"closed"`
	Unlimited   bool     `json:"unlimited"`
	EndsAt      uint64   `json:"endsAt"`
	CreatedAt   uint64   `json:"createdAt"`
	Target      uint64   `json:"target"`
	Escrow      *big.Int `json:"escrow"`
	Share       *big.Int `json:"share"`
	Distributed *big.Int `json:"distributed"`
	Completed   uint64   `json:"completed"`
	Registered  uint64   `json:"registered"`
	// Counted reports whether the campaign still counts against the
	// creator's open-campaign limit.
	Counted bool `json:"counted"`
}

// Clone returns a deep copy of the campaign.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Escrow = newBigInt(c.Escrow)
	clone.Share = newBigInt(c.Share)
	clone.Distributed = newBigInt(c.Distributed)
	return &clone
}

// Remaining is the escrow not yet credited to participants.
func (c *Campaign) Remaining() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(newBigInt(c.Escrow), newBigInt(c.Distributed))
}

// EndedAt reports whether the campaign has expired at unix time now.
func (c *Campaign) EndedAt(now uint64) bool {
	return c != nil && !c.Unlimited && now >= c.EndsAt
}

// Filled reports whether every participant slot has completed.
func (c *Campaign) Filled() bool {
	return c != nil && c.Completed >= c.Target
}

// CampaignInput carries the creator-supplied fields of a new campaign.
type CampaignInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Target      uint64   `json:"target"`
	// Duration is in seconds and ignored when Unlimited is set.
	Duration  uint64   `json:"duration"`
	Unlimited bool     `json:"unlimited"`
	Escrow    *big.Int `json:"escrow"`
	// Asset is the reward currency symbol; empty means the native asset.
	Asset string `json:"asset"`
}

// Participation captures one account's flags on a campaign.
type Participation struct {
	Registered bool `json:"registered"`
	Completed  bool `json:"completed"`
}

// BatchRequest is a backend-authorized completion of several campaigns for a
// single account.
type BatchRequest struct {
	Account     [20]byte `json:"account"`
	CampaignIDs []uint64 `json:"campaignIds"`
	Nonce       uint64   `json:"nonce"`
	Signature   []byte   `json:"signature"`
}

// SkipReason explains why a campaign in a batch produced no reward.
type SkipReason string

const (
	SkipUnknown   SkipReason = "unknown"
	SkipEnded     SkipReason = "ended"
	SkipInactive  SkipReason = "inactive"
	SkipCompleted SkipReason = "already_completed"
	SkipFilled    SkipReason = "filled"
	SkipFull      SkipReason = "registration_full"
)

// Skipped pairs a campaign identifier with the reason it was passed over.
type Skipped struct {
	CampaignID uint64     `json:"campaignId"`
	Reason     SkipReason `json:"reason"`
}

// BatchResult summarises a settled batch.
type BatchResult struct {
	Account [20]byte  `json:"account"`
	Nonce   uint64    `json:"nonce"`
	Digest  [32]byte  `json:"digest"`
	Settled []uint64  `json:"settled"`
	Skipped []Skipped `json:"skipped"`
	// Rewards maps asset symbol to the amount credited by this batch.
	Rewards map[string]*big.Int `json:"rewards"`
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
