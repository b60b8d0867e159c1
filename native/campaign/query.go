package campaign

import (
	"math/big"

	"questchain/native/bank"
	"questchain/native/common"
	"questchain/native/guard"
)

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return common.ErrNilState
	}
	return nil
}

// Campaign returns a copy of campaign id.
func (e *Engine) Campaign(id uint64) (*Campaign, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadCampaign(id)
}

// CampaignCount returns the number of assigned campaign identifiers.
func (e *Engine) CampaignCount() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.loadUint(campaignCountKey)
}

// Participation returns account's flags on campaign id.
func (e *Engine) Participation(id uint64, account [20]byte) (*Participation, error) {
	if _, err := e.Campaign(id); err != nil {
		return nil, err
	}
	return e.loadParticipation(id, account)
}

// OpenCampaigns returns how many of creator's campaigns count against the
// tier pool limit.
func (e *Engine) OpenCampaigns(creator [20]byte) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.loadUint(openCountKey(creator))
}

// Nonce returns the next settlement nonce expected for account.
func (e *Engine) Nonce(account [20]byte) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.loadUint(nonceKey(account))
}

// BatchProcessed reports whether digest was already settled.
func (e *Engine) BatchProcessed(digest [32]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	var processed bool
	_, err := e.state.KVGet(batchKey(digest), &processed)
	return processed, err
}

// PendingBalance returns account's withdrawable rewards in asset.
func (e *Engine) PendingBalance(account [20]byte, asset string) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	normalized, err := bank.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	return e.loadAmount(pendingKey(normalized, account))
}

// Fees returns the creation fees awaiting owner withdrawal.
func (e *Engine) Fees() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadAmount(feesKey)
}

// CreationFee returns the native fee charged per campaign.
func (e *Engine) CreationFee() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadAmount(feeKey)
}

// BackendAuthority returns the configured settlement signer.
func (e *Engine) BackendAuthority() ([20]byte, error) {
	var authority [20]byte
	if err := e.ready(); err != nil {
		return authority, err
	}
	_, err := e.state.KVGet(authorityKey, &authority)
	return authority, err
}

// Owner returns the current administrator.
func (e *Engine) Owner() ([20]byte, error) { return e.owner.Owner() }

// GuardStatus exposes the approval gate record.
func (e *Engine) GuardStatus() (*guard.Status, error) { return e.gate.Status() }

// Paused reports the module pause flag.
func (e *Engine) Paused() bool { return e.pauses.IsPaused(ModuleName) }
