package nft

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"questchain/core/types"
	"questchain/crypto"
)

const (
	// EventTypeTierAdded is emitted when the administrator registers a tier.
	EventTypeTierAdded = "nft.tier.added"
	// EventTypeTierUpdated is emitted on full or active-flag tier updates.
	EventTypeTierUpdated = "nft.tier.updated"
	// EventTypeMinted is emitted for every issued unit.
	EventTypeMinted = "nft.minted"
	// EventTypeWhitelistRoot is emitted when the whitelist commitment changes.
	EventTypeWhitelistRoot = "nft.whitelist.root"
	// EventTypeOwnershipTransferred is emitted after a guarded ownership change.
	EventTypeOwnershipTransferred = "nft.ownership.transferred"
	// EventTypeProceedsWithdrawn is emitted after a guarded proceeds payout.
	EventTypeProceedsWithdrawn = "nft.proceeds.withdrawn"
	// EventTypePaused is emitted when the pause flag changes.
	EventTypePaused = "nft.paused"
)

func addr(a [20]byte) string {
	return crypto.FromRaw(a).String()
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func tierEvent(eventType string, tier *Tier) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"tierId":    u64(tier.ID),
			"name":      tier.Name,
			"price":     amount(tier.Price),
			"maxSupply": u64(tier.MaxSupply),
			"minted":    u64(tier.Minted),
			"poolLimit": u64(tier.PoolLimit),
			"freeMints": u64(tier.FreeMints),
			"active":    strconv.FormatBool(tier.Active),
			"uri":       tier.URI,
		},
	}
}

func mintedEvent(owner [20]byte, tier *Tier, result *MintResult) *types.Event {
	return &types.Event{
		Type: EventTypeMinted,
		Attributes: map[string]string{
			"owner":     addr(owner),
			"tokenId":   u64(result.TokenID),
			"tierId":    u64(tier.ID),
			"path":      string(result.Path),
			"charged":   amount(result.Charged),
			"minted":    u64(tier.Minted),
			"freeMints": u64(tier.FreeMints),
			"level":     u64(result.Level),
			"uri":       tier.URI,
		},
	}
}

func whitelistRootEvent(root [32]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeWhitelistRoot,
		Attributes: map[string]string{"root": "0x" + hex.EncodeToString(root[:])},
	}
}

func ownershipEvent(previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeOwnershipTransferred,
		Attributes: map[string]string{
			"previous": addr(previous),
			"owner":    addr(next),
		},
	}
}

func proceedsEvent(to [20]byte, value *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeProceedsWithdrawn,
		Attributes: map[string]string{
			"to":     addr(to),
			"amount": amount(value),
		},
	}
}

func pausedEvent(paused bool) *types.Event {
	return &types.Event{
		Type:       EventTypePaused,
		Attributes: map[string]string{"paused": strconv.FormatBool(paused)},
	}
}
