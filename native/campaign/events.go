package campaign

import (
	"encoding/hex"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"questchain/core/types"
	"questchain/crypto"
)

const (
	EventTypeCreated           = "campaign.created"
	EventTypeRegistered        = "campaign.registered"
	EventTypeCompleted         = "campaign.completed"
	EventTypeCancelled         = "campaign.cancelled"
	EventTypeFinalized         = "campaign.finalized"
	EventTypeStatus            = "campaign.status"
	EventTypeBatchSettled      = "campaign.batch.settled"
	EventTypeWithdrawn         = "campaign.withdrawn"
	EventTypeFeesWithdrawn     = "campaign.fees.withdrawn"
	EventTypeAuthorityUpdated  = "campaign.authority.updated"
	EventTypeFeeUpdated        = "campaign.fee.updated"
	EventTypeOwnershipTransfer = "campaign.ownership.transferred"
	EventTypePaused            = "campaign.paused"
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

// counts attaches the indexing counters of a campaign to attrs.
func counts(c *Campaign, attrs map[string]string) map[string]string {
	attrs["campaignId"] = u64(c.ID)
	attrs["registered"] = u64(c.Registered)
	attrs["completed"] = u64(c.Completed)
	attrs["target"] = u64(c.Target)
	attrs["distributed"] = amount(c.Distributed)
	return attrs
}

func createdEvent(c *Campaign, fee *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeCreated,
		Attributes: counts(c, map[string]string{
			"creator":   addr(c.Creator),
			"title":     c.Title,
			"asset":     c.Asset,
			"escrow":    amount(c.Escrow),
			"share":     amount(c.Share),
			"endsAt":    u64(c.EndsAt),
			"unlimited": strconv.FormatBool(c.Unlimited),
			"fee":       amount(fee),
		}),
	}
}

func registeredEvent(c *Campaign, account [20]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeRegistered,
		Attributes: counts(c, map[string]string{"account": addr(account)}),
	}
}

func completedEvent(c *Campaign, account [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeCompleted,
		Attributes: counts(c, map[string]string{
			"account": addr(account),
			"reward":  amount(c.Share),
			"asset":   c.Asset,
		}),
	}
}

func closedEvent(c *Campaign, caller [20]byte, refund *big.Int, finalized bool) *types.Event {
	kind := EventTypeCancelled
	if finalized {
		kind = EventTypeFinalized
	}
	return &types.Event{
		Type: kind,
		Attributes: counts(c, map[string]string{
			"caller":  addr(caller),
			"creator": addr(c.Creator),
			"refund":  amount(refund),
			"asset":   c.Asset,
		}),
	}
}

func statusEvent(c *Campaign) *types.Event {
	return &types.Event{
		Type:       EventTypeStatus,
		Attributes: counts(c, map[string]string{"active": strconv.FormatBool(c.Active)}),
	}
}

func batchEvent(submitter [20]byte, r *BatchResult) *types.Event {
	settled := make([]string, len(r.Settled))
	for i, id := range r.Settled {
		settled[i] = u64(id)
	}
	skipped := make([]string, len(r.Skipped))
	for i, s := range r.Skipped {
		skipped[i] = u64(s.CampaignID) + ":" + string(s.Reason)
	}
	rewards := make([]string, 0, len(r.Rewards))
	for asset, v := range r.Rewards {
		rewards = append(rewards, asset+":"+amount(v))
	}
	sort.Strings(rewards)
	return &types.Event{
		Type: EventTypeBatchSettled,
		Attributes: map[string]string{
			"account":   addr(r.Account),
			"submitter": addr(submitter),
			"nonce":     u64(r.Nonce),
			"digest":    "0x" + hex.EncodeToString(r.Digest[:]),
			"settled":   strings.Join(settled, ","),
			"skipped":   strings.Join(skipped, ","),
			"rewards":   strings.Join(rewards, ","),
		},
	}
}

func withdrawnEvent(account [20]byte, asset string, value *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"account": addr(account),
			"asset":   asset,
			"amount":  amount(value),
		},
	}
}

func feesWithdrawnEvent(to [20]byte, value *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeFeesWithdrawn,
		Attributes: map[string]string{
			"to":     addr(to),
			"amount": amount(value),
		},
	}
}

func authorityEvent(authority [20]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeAuthorityUpdated,
		Attributes: map[string]string{"authority": addr(authority)},
	}
}

func feeEvent(fee *big.Int) *types.Event {
	return &types.Event{
		Type:       EventTypeFeeUpdated,
		Attributes: map[string]string{"fee": amount(fee)},
	}
}

func ownershipEvent(previous, next [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeOwnershipTransfer,
		Attributes: map[string]string{
			"previous": addr(previous),
			"owner":    addr(next),
		},
	}
}

func pausedEvent(paused bool) *types.Event {
	return &types.Event{
		Type:       EventTypePaused,
		Attributes: map[string]string{"paused": strconv.FormatBool(paused)},
	}
}
