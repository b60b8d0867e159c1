package nft

import (
	"math/big"

	"questchain/native/common"
)

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return common.ErrNilState
	}
	return nil
}

// Tier returns a copy of the tier.
func (e *Engine) Tier(id uint64) (*Tier, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadTier(id)
}

// TierCount returns the number of assigned tier identifiers.
func (e *Engine) TierCount() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.loadUint(tierCountKey)
}

// Tiers lists every registered tier in identifier order.
func (e *Engine) Tiers() ([]*Tier, error) {
	count, err := e.TierCount()
	if err != nil {
		return nil, err
	}
	out := make([]*Tier, 0, count)
	for id := uint64(1); id <= count; id++ {
		tier, err := e.loadTier(id)
		if err != nil {
			return nil, err
		}
		out = append(out, tier)
	}
	return out, nil
}

// LevelOf returns the highest tier identifier account ever minted; 0 when the
// account holds no tier.
func (e *Engine) LevelOf(account [20]byte) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.loadUint(levelKey(account))
}

// MintRecord returns the mint flags for (account, tier).
func (e *Engine) MintRecord(account [20]byte, tierID uint64) (*MintRecord, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadMintRecord(account, tierID)
}

// WhitelistUsed reports whether account spent its whitelist redemption.
func (e *Engine) WhitelistUsed(account [20]byte) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	return e.loadBool(whitelistUsedKey(account))
}

// WhitelistRoot returns the published commitment, zero when unset.
func (e *Engine) WhitelistRoot() ([32]byte, error) {
	var root [32]byte
	if err := e.ready(); err != nil {
		return root, err
	}
	_, err := e.state.KVGet(rootKey, &root)
	return root, err
}

// Token returns an issued token.
func (e *Engine) Token(id uint64) (*Token, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	token := new(Token)
	ok, err := e.state.KVGet(tokenKey(id), token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// OwnerOf returns the holder of token id.
func (e *Engine) OwnerOf(id uint64) ([20]byte, error) {
	token, err := e.Token(id)
	if err != nil {
		return [20]byte{}, err
	}
	return token.Owner, nil
}

// TokenURI returns the metadata location attached at mint time.
func (e *Engine) TokenURI(id uint64) (string, error) {
	token, err := e.Token(id)
	if err != nil {
		return "", err
	}
	return token.URI, nil
}

// TokensOf lists the token identifiers held by owner.
func (e *Engine) TokensOf(owner [20]byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	var holdings []uint64
	if _, err := e.state.KVGet(holdingsKey(owner), &holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

// BalanceOf returns the number of tokens held by owner.
func (e *Engine) BalanceOf(owner [20]byte) (uint64, error) {
	holdings, err := e.TokensOf(owner)
	if err != nil {
		return 0, err
	}
	return uint64(len(holdings)), nil
}

// Proceeds returns the mint payments awaiting owner withdrawal.
func (e *Engine) Proceeds() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadProceeds()
}
