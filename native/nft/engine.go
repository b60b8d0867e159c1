// Package nft implements the tiered membership NFT contract: a tier registry,
// the mint allocator with free-mint and whitelist paths, and the guarded
// treasury and ownership operations.
package nft

import (
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"questchain/core/events"
	"questchain/core/types"
	"questchain/native/common"
	"questchain/native/guard"
	"questchain/observability/metrics"
)

// ModuleName identifies the contract for pause flags, ownership and guards.
const ModuleName = "nft"

const maxNameLength = 50

// ValueLedger is the subset of the token ledger used for payments.
type ValueLedger interface {
	Transfer(from, to [20]byte, asset string, amount *big.Int) error
}

// Engine wires NFT contract business logic with persistence and event emission.
type Engine struct {
	state    common.Store
	ledger   ValueLedger
	asset    string
	contract [20]byte
	exec     *common.Executor
	pauses   *common.PauseRegistry
	owner    *common.Ownership
	gate     *guard.Gate
	nowFn    func() int64
}

// NewEngine constructs an NFT engine. contract is the account that receives
// mint payments; asset is the symbol of the payment currency.
func NewEngine(state common.Store, ledger ValueLedger, contract [20]byte, asset string) *Engine {
	e := &Engine{
		state:    state,
		ledger:   ledger,
		asset:    asset,
		contract: contract,
		exec:     common.NewExecutor(state),
		pauses:   common.NewPauseRegistry(state),
		owner:    common.NewOwnership(state, ModuleName),
		gate:     guard.NewGate(state, ModuleName),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
	e.gate.SetEmitter(e.exec)
	return e
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) { e.exec.SetEmitter(emitter) }

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Contract returns the account holding mint proceeds.
func (e *Engine) Contract() [20]byte { return e.contract }

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil {
		return
	}
	e.exec.Emit(events.Wrap(evt))
}

func (e *Engine) run(fn func() error) error {
	if e == nil || e.state == nil {
		return common.ErrNilState
	}
	return e.exec.Run(fn)
}

// Initialise records the owner and the two guards. It may only run once.
func (e *Engine) Initialise(owner, guard1, guard2 [20]byte) error {
	return e.run(func() error {
		current, err := e.owner.Owner()
		if err != nil {
			return err
		}
		if !common.IsZero(current) {
			return ErrAlreadyInitialised
		}
		if err := e.owner.Set(owner); err != nil {
			return err
		}
		return e.gate.Init(guard1, guard2)
	})
}

func validateTierInput(input TierInput) error {
	name := strings.TrimSpace(input.Name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return ErrNameLengthInvalid
	}
	if strings.TrimSpace(input.URI) == "" {
		return ErrEmptyLocation
	}
	if input.MaxSupply == 0 {
		return ErrSupplyMustBePositive
	}
	if input.PoolLimit == 0 {
		return ErrPoolMustBePositive
	}
	if input.FreeMints > input.MaxSupply {
		return ErrFreeMintExceedsSupply
	}
	if input.Price != nil && input.Price.Sign() < 0 {
		return ErrInvalidPrice
	}
	return nil
}

// AddTier registers a new tier and returns it with its assigned identifier.
func (e *Engine) AddTier(caller [20]byte, input TierInput) (*Tier, error) {
	if err := validateTierInput(input); err != nil {
		return nil, err
	}
	var created *Tier
	err := e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		id, err := e.nextSequence(tierCountKey)
		if err != nil {
			return err
		}
		tier := &Tier{
			ID:        id,
			Name:      strings.TrimSpace(input.Name),
			Price:     newBigInt(input.Price),
			MaxSupply: input.MaxSupply,
			PoolLimit: input.PoolLimit,
			URI:       strings.TrimSpace(input.URI),
			Active:    true,
			FreeMints: input.FreeMints,
		}
		if err := e.saveTier(tier); err != nil {
			return err
		}
		e.emit(tierEvent(EventTypeTierAdded, tier))
		created = tier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// UpdateTier replaces the administrator-controlled fields of a tier. The
// minted count is preserved and max supply may not drop below it.
func (e *Engine) UpdateTier(caller [20]byte, id uint64, input TierInput, active bool) (*Tier, error) {
	if err := validateTierInput(input); err != nil {
		return nil, err
	}
	var updated *Tier
	err := e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		tier, err := e.loadTier(id)
		if err != nil {
			return err
		}
		if input.MaxSupply < tier.Minted {
			return ErrSupplyBelowMinted
		}
		tier.Name = strings.TrimSpace(input.Name)
		tier.Price = newBigInt(input.Price)
		tier.MaxSupply = input.MaxSupply
		tier.PoolLimit = input.PoolLimit
		tier.URI = strings.TrimSpace(input.URI)
		tier.FreeMints = input.FreeMints
		tier.Active = active
		if err := e.saveTier(tier); err != nil {
			return err
		}
		e.emit(tierEvent(EventTypeTierUpdated, tier))
		updated = tier
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// SetTierActive toggles only the active flag of a tier.
func (e *Engine) SetTierActive(caller [20]byte, id uint64, active bool) error {
	return e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		tier, err := e.loadTier(id)
		if err != nil {
			return err
		}
		tier.Active = active
		if err := e.saveTier(tier); err != nil {
			return err
		}
		e.emit(tierEvent(EventTypeTierUpdated, tier))
		return nil
	})
}

// SetWhitelistRoot publishes the whitelist commitment. The zero root clears it.
func (e *Engine) SetWhitelistRoot(caller [20]byte, root [32]byte) error {
	return e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		if err := e.state.KVPut(rootKey, root); err != nil {
			return err
		}
		e.emit(whitelistRootEvent(root))
		return nil
	})
}

// SetPaused toggles the module pause flag.
func (e *Engine) SetPaused(caller [20]byte, paused bool) error {
	return e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		if err := e.pauses.SetPaused(ModuleName, paused); err != nil {
			return err
		}
		e.emit(pausedEvent(paused))
		return nil
	})
}

// RecordGuardDecision stores a guard's approval decision and returns the
// combined approval.
func (e *Engine) RecordGuardDecision(caller [20]byte, decision bool) (bool, error) {
	var combined bool
	err := e.run(func() error {
		var err error
		combined, err = e.gate.RecordDecision(caller, decision)
		return err
	})
	return combined, err
}

// WithdrawProceeds pays all accumulated mint proceeds to the owner. It needs a
// fresh unanimous guard approval, which it consumes.
func (e *Engine) WithdrawProceeds(caller [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		proceeds, err := e.loadProceeds()
		if err != nil {
			return err
		}
		if proceeds.Sign() == 0 {
			return common.ErrNoFundsToWithdraw
		}
		if err := e.gate.Consume("withdraw_proceeds"); err != nil {
			return err
		}
		if err := e.state.KVPut(proceedsKey, big.NewInt(0)); err != nil {
			return err
		}
		if err := e.ledger.Transfer(e.contract, caller, e.asset, proceeds); err != nil {
			return common.WrapTransfer(err)
		}
		e.emit(proceedsEvent(caller, proceeds))
		paid = proceeds
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveWithdrawal(ModuleName, e.asset)
	metrics.Quest().ObserveGated(ModuleName, "withdraw_proceeds")
	return paid, nil
}

// TransferOwnership hands the contract to newOwner after guard approval.
func (e *Engine) TransferOwnership(caller [20]byte, newOwner [20]byte) error {
	if common.IsZero(newOwner) {
		return common.ErrZeroAddress
	}
	err := e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		if err := e.gate.Consume("transfer_ownership"); err != nil {
			return err
		}
		if err := e.owner.Set(newOwner); err != nil {
			return err
		}
		e.emit(ownershipEvent(caller, newOwner))
		return nil
	})
	if err != nil {
		return err
	}
	metrics.Quest().ObserveGated(ModuleName, "transfer_ownership")
	return nil
}

// Owner returns the current administrator.
func (e *Engine) Owner() ([20]byte, error) { return e.owner.Owner() }

// GuardStatus exposes the approval gate record.
func (e *Engine) GuardStatus() (*guard.Status, error) { return e.gate.Status() }

// Paused reports the module pause flag.
func (e *Engine) Paused() bool { return e.pauses.IsPaused(ModuleName) }
