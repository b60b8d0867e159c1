package nft

import (
	"fmt"
	"math/big"
)

var (
	tierCountKey  = []byte("nft/tier-count")
	tokenCountKey = []byte("nft/token-count")
	rootKey       = []byte("nft/whitelist-root")
	proceedsKey   = []byte("nft/proceeds")
)

func tierKey(id uint64) []byte {
	return []byte(fmt.Sprintf("nft/tier/%d", id))
}

func mintRecordKey(account [20]byte, tierID uint64) []byte {
	return []byte(fmt.Sprintf("nft/record/%x/%d", account, tierID))
}

func whitelistUsedKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("nft/whitelist-used/%x", account))
}

func levelKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("nft/level/%x", account))
}

func tokenKey(id uint64) []byte {
	return []byte(fmt.Sprintf("nft/token/%d", id))
}

func holdingsKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("nft/holdings/%x", account))
}

func (e *Engine) loadUint(key []byte) (uint64, error) {
	var v uint64
	if _, err := e.state.KVGet(key, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (e *Engine) loadBool(key []byte) (bool, error) {
	var v bool
	if _, err := e.state.KVGet(key, &v); err != nil {
		return false, err
	}
	return v, nil
}

// nextSequence increments the counter stored at key and returns the new value.
func (e *Engine) nextSequence(key []byte) (uint64, error) {
	current, err := e.loadUint(key)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := e.state.KVPut(key, next); err != nil {
		return 0, err
	}
	return next, nil
}

func (e *Engine) loadTier(id uint64) (*Tier, error) {
	count, err := e.loadUint(tierCountKey)
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, ErrInvalidTierIndex
	}
	tier := new(Tier)
	ok, err := e.state.KVGet(tierKey(id), tier)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTierIndex
	}
	if tier.Price == nil {
		tier.Price = big.NewInt(0)
	}
	return tier, nil
}

func (e *Engine) saveTier(tier *Tier) error {
	return e.state.KVPut(tierKey(tier.ID), tier)
}

func (e *Engine) loadMintRecord(account [20]byte, tierID uint64) (*MintRecord, error) {
	rec := new(MintRecord)
	if _, err := e.state.KVGet(mintRecordKey(account, tierID), rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) loadProceeds() (*big.Int, error) {
	v := new(big.Int)
	if _, err := e.state.KVGet(proceedsKey, v); err != nil {
		return nil, err
	}
	return v, nil
}
