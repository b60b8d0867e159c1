package events

import (
	"math/big"

	"questchain/core/types"
	"questchain/crypto"
)

const (
	// TypeTransfer is emitted for every ledger balance movement between
	// accounts.
	TypeTransfer = "bank.transfer"
)

// Transfer describes a ledger balance movement.
type Transfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (Transfer) EventType() string { return TypeTransfer }

func (e Transfer) Event() *types.Event {
	attrs := map[string]string{
		"from":   crypto.FromRaw(e.From).String(),
		"to":     crypto.FromRaw(e.To).String(),
		"amount": formatAmount(e.Amount),
	}
	if asset := normalizeAsset(e.Asset); asset != "" {
		attrs["asset"] = asset
	}
	return &types.Event{Type: TypeTransfer, Attributes: attrs}
}
