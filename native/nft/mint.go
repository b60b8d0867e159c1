package nft

import (
	"math/big"

	"questchain/crypto"
	"questchain/native/common"
	"questchain/observability/metrics"
)

// checkMintable runs the tier checks shared by every mint path.
func (e *Engine) checkMintable(account [20]byte, tierID uint64) (*Tier, *MintRecord, error) {
	tier, err := e.loadTier(tierID)
	if err != nil {
		return nil, nil, err
	}
	if !tier.Active {
		return nil, nil, ErrTierNotActive
	}
	if tier.Minted >= tier.MaxSupply {
		return nil, nil, ErrMaxSupplyReached
	}
	record, err := e.loadMintRecord(account, tierID)
	if err != nil {
		return nil, nil, err
	}
	if record.Minted {
		return nil, nil, ErrAlreadyMinted
	}
	return tier, record, nil
}

// Mint issues one unit of tierID to caller. A remaining free-mint allotment is
// consumed first; otherwise paid must cover the tier price and is collected in
// full.
func (e *Engine) Mint(caller [20]byte, tierID uint64, paid *big.Int) (*MintResult, error) {
	if paid != nil && paid.Sign() < 0 {
		return nil, ErrInsufficientPayment
	}
	var result *MintResult
	err := e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		tier, record, err := e.checkMintable(caller, tierID)
		if err != nil {
			return err
		}
		charged := big.NewInt(0)
		path := MintPathPaid
		if tier.FreeMints > 0 && !record.UsedFreeMint {
			tier.FreeMints--
			record.UsedFreeMint = true
			path = MintPathFree
		} else {
			value := newBigInt(paid)
			if value.Cmp(tier.Price) < 0 {
				return ErrInsufficientPayment
			}
			if value.Sign() > 0 {
				if err := e.collect(caller, value); err != nil {
					return err
				}
			}
			charged = value
		}
		record.Minted = true
		if err := e.state.KVPut(mintRecordKey(caller, tierID), record); err != nil {
			return err
		}
		result, err = e.issue(caller, tier, path, charged)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveMint(result.TierID, string(result.Path))
	return result, nil
}

// WhitelistMint redeems caller's single whitelist allowance on tierID. The
// unit is free and does not touch the tier's free-mint allotment.
func (e *Engine) WhitelistMint(caller [20]byte, proof [][32]byte, tierID uint64) (*MintResult, error) {
	var result *MintResult
	err := e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		tier, record, err := e.checkMintable(caller, tierID)
		if err != nil {
			return err
		}
		used, err := e.loadBool(whitelistUsedKey(caller))
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyMinted
		}
		var root [32]byte
		if _, err := e.state.KVGet(rootKey, &root); err != nil {
			return err
		}
		if root == ([32]byte{}) {
			return ErrRootNotSet
		}
		if !crypto.VerifyMerkleProof(root, crypto.WhitelistLeaf(caller), proof) {
			return ErrInvalidProof
		}
		if err := e.state.KVPut(whitelistUsedKey(caller), true); err != nil {
			return err
		}
		record.Minted = true
		if err := e.state.KVPut(mintRecordKey(caller, tierID), record); err != nil {
			return err
		}
		result, err = e.issue(caller, tier, MintPathWhitelist, big.NewInt(0))
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveMint(result.TierID, string(result.Path))
	return result, nil
}

func (e *Engine) collect(payer [20]byte, value *big.Int) error {
	if err := e.ledger.Transfer(payer, e.contract, e.asset, value); err != nil {
		return err
	}
	proceeds, err := e.loadProceeds()
	if err != nil {
		return err
	}
	return e.state.KVPut(proceedsKey, proceeds.Add(proceeds, value))
}

// issue creates the token, raises the holder's level and bumps the tier count.
func (e *Engine) issue(owner [20]byte, tier *Tier, path MintPath, charged *big.Int) (*MintResult, error) {
	tokenID, err := e.nextSequence(tokenCountKey)
	if err != nil {
		return nil, err
	}
	token := &Token{
		ID:       tokenID,
		Owner:    owner,
		TierID:   tier.ID,
		URI:      tier.URI,
		MintedAt: uint64(e.nowFn()),
	}
	if err := e.state.KVPut(tokenKey(tokenID), token); err != nil {
		return nil, err
	}
	var holdings []uint64
	if _, err := e.state.KVGet(holdingsKey(owner), &holdings); err != nil {
		return nil, err
	}
	holdings = append(holdings, tokenID)
	if err := e.state.KVPut(holdingsKey(owner), holdings); err != nil {
		return nil, err
	}
	level, err := e.loadUint(levelKey(owner))
	if err != nil {
		return nil, err
	}
	if tier.ID > level {
		level = tier.ID
		if err := e.state.KVPut(levelKey(owner), level); err != nil {
			return nil, err
		}
	}
	tier.Minted++
	if err := e.saveTier(tier); err != nil {
		return nil, err
	}
	result := &MintResult{
		TokenID: tokenID,
		TierID:  tier.ID,
		Path:    path,
		Charged: charged,
		Level:   level,
	}
	e.emit(mintedEvent(owner, tier, result))
	return result, nil
}
