package campaign

import (
	"math/big"
	"strings"
	"unicode/utf8"

	"questchain/native/bank"
	"questchain/native/common"
	"questchain/observability/metrics"
)

const (
	maxTitleLength       = 100
	maxDescriptionLength = 1000
)

func validateInput(input CampaignInput) (string, error) {
	title := strings.TrimSpace(input.Title)
	description := strings.TrimSpace(input.Description)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return "", ErrInvalidCampaignData
	}
	if description == "" || utf8.RuneCountInString(description) > maxDescriptionLength {
		return "", ErrInvalidCampaignData
	}
	if input.Target == 0 {
		return "", ErrInvalidCampaignData
	}
	if !input.Unlimited && input.Duration == 0 {
		return "", ErrInvalidCampaignData
	}
	if input.Escrow == nil || input.Escrow.Sign() <= 0 {
		return "", ErrInvalidCampaignData
	}
	target := new(big.Int).SetUint64(input.Target)
	if new(big.Int).Mod(input.Escrow, target).Sign() != 0 {
		return "", ErrInvalidCampaignData
	}
	asset, err := bank.NormalizeAsset(input.Asset)
	if err != nil {
		return "", ErrInvalidCampaignData
	}
	return asset, nil
}

// CreateCampaign escrows input.Escrow from creator and opens a campaign. The
// creator must hold a membership tier with a free open-campaign slot and pays
// the configured creation fee in the native asset.
func (e *Engine) CreateCampaign(creator [20]byte, input CampaignInput) (*Campaign, error) {
	asset, err := validateInput(input)
	if err != nil {
		return nil, err
	}
	var created *Campaign
	err = e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		if _, err := e.creatorAllowance(creator); err != nil {
			return err
		}
		id, err := e.nextCampaignID()
		if err != nil {
			return err
		}
		now := e.now()
		c := &Campaign{
			ID:          id,
			Creator:     creator,
			Title:       strings.TrimSpace(input.Title),
			Description: strings.TrimSpace(input.Description),
			Asset:       asset,
			Active:      true,
			Unlimited:   input.Unlimited,
			CreatedAt:   now,
			Target:      input.Target,
			Escrow:      newBigInt(input.Escrow),
			Share:       new(big.Int).Div(input.Escrow, new(big.Int).SetUint64(input.Target)),
			Distributed: big.NewInt(0),
			Counted:     true,
		}
		if !input.Unlimited {
			c.EndsAt = now + input.Duration
		}
		if err := e.ledger.Transfer(creator, e.contract, asset, c.Escrow); err != nil {
			return err
		}
		fee, err := e.loadAmount(feeKey)
		if err != nil {
			return err
		}
		if fee.Sign() > 0 {
			if err := e.ledger.Transfer(creator, e.contract, bank.NativeAsset, fee); err != nil {
				return err
			}
			fees, err := e.loadAmount(feesKey)
			if err != nil {
				return err
			}
			if err := e.state.KVPut(feesKey, fees.Add(fees, fee)); err != nil {
				return err
			}
		}
		if err := e.adjustOpen(creator, 1); err != nil {
			return err
		}
		if err := e.saveCampaign(c); err != nil {
			return err
		}
		e.emit(createdEvent(c, fee))
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveCampaign("created")
	return created.Clone(), nil
}

// checkOpen runs the existence, expiry and activity checks shared by the
// participant entry points.
func (e *Engine) checkOpen(id uint64) (*Campaign, error) {
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	if c.EndedAt(e.now()) {
		return nil, ErrCampaignEnded
	}
	if !c.Active {
		return nil, ErrCampaignNotActive
	}
	return c, nil
}

// RegisterCampaign enrols caller as a participant.
func (e *Engine) RegisterCampaign(caller [20]byte, id uint64) error {
	err := e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		c, err := e.checkOpen(id)
		if err != nil {
			return err
		}
		if c.Registered >= c.Target {
			return ErrRegistrationFull
		}
		p, err := e.loadParticipation(id, caller)
		if err != nil {
			return err
		}
		if p.Registered {
			return ErrAlreadyRegistered
		}
		if c.Filled() {
			return ErrCampaignWasCompleted
		}
		return e.register(c, caller, p)
	})
	if err != nil {
		return err
	}
	metrics.Quest().ObserveCampaign("registered")
	return nil
}

func (e *Engine) register(c *Campaign, account [20]byte, p *Participation) error {
	p.Registered = true
	c.Registered++
	if err := e.saveParticipation(c.ID, account, p); err != nil {
		return err
	}
	if err := e.saveCampaign(c); err != nil {
		return err
	}
	e.emit(registeredEvent(c, account))
	return nil
}

// CompleteCampaign marks caller's participation complete and credits one share
// to caller's withdrawable balance.
func (e *Engine) CompleteCampaign(caller [20]byte, id uint64) (*big.Int, error) {
	var reward *big.Int
	err := e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		c, err := e.checkOpen(id)
		if err != nil {
			return err
		}
		p, err := e.loadParticipation(id, caller)
		if err != nil {
			return err
		}
		if !p.Registered {
			return ErrNotRegistered
		}
		if p.Completed {
			return ErrAlreadyCompleted
		}
		if c.Filled() {
			return ErrCampaignWasCompleted
		}
		if err := e.complete(c, caller, p); err != nil {
			return err
		}
		if err := e.credit(caller, c.Asset, c.Share); err != nil {
			return err
		}
		e.emit(completedEvent(c, caller))
		reward = newBigInt(c.Share)
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveCampaign("completed")
	return reward, nil
}

// complete applies a completion to the campaign counters. When the target is
// reached the campaign stops counting against the creator's limit.
func (e *Engine) complete(c *Campaign, account [20]byte, p *Participation) error {
	p.Completed = true
	c.Completed++
	c.Distributed = new(big.Int).Add(c.Distributed, c.Share)
	if c.Filled() && c.Counted {
		c.Counted = false
		if err := e.adjustOpen(c.Creator, -1); err != nil {
			return err
		}
	}
	if err := e.saveParticipation(c.ID, account, p); err != nil {
		return err
	}
	return e.saveCampaign(c)
}

// CancelCampaign closes a campaign early and refunds the undistributed escrow
// to its creator. Only the creator or the owner may cancel.
func (e *Engine) CancelCampaign(caller [20]byte, id uint64) (*big.Int, error) {
	return e.close(caller, id, false)
}

// FinalizeCampaign closes an expired or fully completed campaign and refunds
// the undistributed escrow to its creator.
func (e *Engine) FinalizeCampaign(caller [20]byte, id uint64) (*big.Int, error) {
	return e.close(caller, id, true)
}

func (e *Engine) close(caller [20]byte, id uint64, finalize bool) (*big.Int, error) {
	var refund *big.Int
	err := e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		c, err := e.loadCampaign(id)
		if err != nil {
			return err
		}
		if caller != c.Creator {
			if err := e.owner.Require(caller); err != nil {
				return ErrNotCreator
			}
		}
		if c.Closed {
			return ErrCampaignClosed
		}
		if finalize && !c.EndedAt(e.now()) && !c.Filled() {
			return ErrCampaignNotEnded
		}
		c.Active = false
		c.Closed = true
		if c.Counted {
			c.Counted = false
			if err := e.adjustOpen(c.Creator, -1); err != nil {
				return err
			}
		}
		if err := e.saveCampaign(c); err != nil {
			return err
		}
		remaining := c.Remaining()
		if remaining.Sign() > 0 {
			if err := e.ledger.Transfer(e.contract, c.Creator, c.Asset, remaining); err != nil {
				return common.WrapTransfer(err)
			}
		}
		e.emit(closedEvent(c, caller, remaining, finalize))
		refund = remaining
		return nil
	})
	if err != nil {
		return nil, err
	}
	if finalize {
		metrics.Quest().ObserveCampaign("finalized")
	} else {
		metrics.Quest().ObserveCampaign("cancelled")
	}
	return refund, nil
}

// SetCampaignActive toggles a campaign's active flag. Closed campaigns cannot
// be reactivated.
func (e *Engine) SetCampaignActive(caller [20]byte, id uint64, active bool) error {
	return e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		c, err := e.loadCampaign(id)
		if err != nil {
			return err
		}
		if c.Closed {
			return ErrCampaignClosed
		}
		c.Active = active
		if err := e.saveCampaign(c); err != nil {
			return err
		}
		e.emit(statusEvent(c))
		return nil
	})
}
