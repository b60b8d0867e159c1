package events

import (
	"math/big"
	"strings"

	"questchain/core/types"
	"questchain/crypto"
)

const (
	// TypeTokenSupply is emitted whenever an asset's supply changes.
	TypeTokenSupply = "bank.supply"

	// SupplyReasonMint identifies mint driven supply increases.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies burn driven supply decreases.
	SupplyReasonBurn = "burn"
)

// TokenSupply captures a supply delta for an asset and the account it was
// credited to or debited from.
type TokenSupply struct {
	Token   string
	Account [20]byte
	Total   *big.Int
	Delta   *big.Int
	Reason  string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	token := normalizeAsset(e.Token)
	if token == "" {
		token = "UNKNOWN"
	}
	attrs := map[string]string{
		"token":   token,
		"account": crypto.FromRaw(e.Account).String(),
		"total":   formatAmount(e.Total),
	}
	if e.Delta != nil {
		attrs["delta"] = e.Delta.String()
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
