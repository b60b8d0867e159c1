package campaign

import (
	"fmt"

	"questchain/native/nft"
)

// TierInfo is the slice of an NFT tier the campaign side relies on.
type TierInfo struct {
	ID        uint64
	PoolLimit uint64
	Active    bool
}

// TierSource answers membership questions about campaign creators. Lookup
// failures must be returned, never defaulted.
type TierSource interface {
	LevelOf(account [20]byte) (uint64, error)
	TierInfo(id uint64) (*TierInfo, error)
}

// NFTTiers adapts the NFT engine to TierSource.
type NFTTiers struct {
	Engine *nft.Engine
}

// LevelOf returns the highest tier the account minted.
func (s NFTTiers) LevelOf(account [20]byte) (uint64, error) {
	if s.Engine == nil {
		return 0, ErrNoTierSource
	}
	return s.Engine.LevelOf(account)
}

// TierInfo returns the pool settings of tier id.
func (s NFTTiers) TierInfo(id uint64) (*TierInfo, error) {
	if s.Engine == nil {
		return nil, ErrNoTierSource
	}
	tier, err := s.Engine.Tier(id)
	if err != nil {
		return nil, err
	}
	return &TierInfo{ID: tier.ID, PoolLimit: tier.PoolLimit, Active: tier.Active}, nil
}

// creatorAllowance resolves the creator's tier and checks the open-campaign
// limit. Every failure rejects the creation.
func (e *Engine) creatorAllowance(creator [20]byte) (uint64, error) {
	if e.tiers == nil {
		return 0, ErrNoTierSource
	}
	level, err := e.tiers.LevelOf(creator)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTierLookup, err)
	}
	if level == 0 {
		return 0, ErrNoMembership
	}
	info, err := e.tiers.TierInfo(level)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTierLookup, err)
	}
	if info == nil {
		return 0, ErrTierLookup
	}
	open, err := e.loadUint(openCountKey(creator))
	if err != nil {
		return 0, err
	}
	if open >= info.PoolLimit {
		return 0, ErrPoolLimitReached
	}
	return level, nil
}
