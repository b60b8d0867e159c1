package campaign

import (
	"fmt"
	"math/big"
)

var (
	campaignCountKey = []byte("campaign/count")
	authorityKey     = []byte("campaign/authority")
	feeKey           = []byte("campaign/creation-fee")
	feesKey          = []byte("campaign/fees")
)

func campaignKey(id uint64) []byte {
	return []byte(fmt.Sprintf("campaign/record/%d", id))
}

func participationKey(id uint64, account [20]byte) []byte {
	return []byte(fmt.Sprintf("campaign/participant/%d/%x", id, account))
}

func openCountKey(creator [20]byte) []byte {
	return []byte(fmt.Sprintf("campaign/open/%x", creator))
}

func nonceKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("campaign/nonce/%x", account))
}

func batchKey(digest [32]byte) []byte {
	return []byte(fmt.Sprintf("campaign/batch/%x", digest))
}

func pendingKey(asset string, account [20]byte) []byte {
	return []byte(fmt.Sprintf("campaign/pending/%s/%x", asset, account))
}

func (e *Engine) loadUint(key []byte) (uint64, error) {
	var v uint64
	if _, err := e.state.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (e *Engine) loadAmount(key []byte) (*big.Int, error) {
	v := new(big.Int)
	if _, err := e.state.KVGet(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) loadCampaign(id uint64) (*Campaign, error) {
	count, err := e.loadUint(campaignCountKey)
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, ErrCampaignNotFound
	}
	c := new(Campaign)
	ok, err := e.state.KVGet(campaignKey(id), c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCampaignNotFound
	}
	c.Escrow = newBigInt(c.Escrow)
	c.Share = newBigInt(c.Share)
	c.Distributed = newBigInt(c.Distributed)
	return c, nil
}

func (e *Engine) saveCampaign(c *Campaign) error {
	return e.state.KVPut(campaignKey(c.ID), c)
}

func (e *Engine) loadParticipation(id uint64, account [20]byte) (*Participation, error) {
	p := new(Participation)
	if _, err := e.state.KVGet(participationKey(id, account), p); err != nil {
		return nil, err
	}
	return p, nil
}

func (e *Engine) saveParticipation(id uint64, account [20]byte, p *Participation) error {
	return e.state.KVPut(participationKey(id, account), p)
}

// nextCampaignID advances the campaign sequence.
func (e *Engine) nextCampaignID() (uint64, error) {
	current, err := e.loadUint(campaignCountKey)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := e.state.KVPut(campaignCountKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (e *Engine) adjustOpen(creator [20]byte, delta int) error {
	open, err := e.loadUint(openCountKey(creator))
	if err != nil {
		return err
	}
	switch {
	case delta > 0:
		open++
	case open > 0:
		open--
	}
	return e.state.KVPut(openCountKey(creator), open)
}

func (e *Engine) credit(account [20]byte, asset string, value *big.Int) error {
	key := pendingKey(asset, account)
	current, err := e.loadAmount(key)
	if err != nil {
		return err
	}
	return e.state.KVPut(key, current.Add(current, value))
}
