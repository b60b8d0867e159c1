// Package campaign implements the reward campaign contract: funded campaign
// pools, direct and backend-authorized batch completion, the per-account
// withdrawal ledger and the guarded fee treasury.
package campaign

import (
	"math/big"
	"time"

	"questchain/core/events"
	"questchain/core/types"
	"questchain/native/common"
	"questchain/native/guard"
	"questchain/observability/metrics"
)

// ModuleName identifies the contract for pause flags, ownership and guards.
const ModuleName = "campaign"

// ValueLedger moves escrow, fees and payouts.
type ValueLedger interface {
	Transfer(from, to [20]byte, asset string, amount *big.Int) error
}

// Engine wires campaign business logic with persistence and event emission.
type Engine struct {
	state    common.Store
	ledger   ValueLedger
	tiers    TierSource
	contract [20]byte
	domain   *Domain
	exec     *common.Executor
	pauses   *common.PauseRegistry
	owner    *common.Ownership
	gate     *guard.Gate
	nowFn    func() int64
}

// NewEngine constructs a campaign engine. contract is the account holding
// escrow and fees; chainID binds settlement authorizations to this chain.
func NewEngine(state common.Store, ledger ValueLedger, tiers TierSource, contract [20]byte, chainID *big.Int) *Engine {
	e := &Engine{
		state:    state,
		ledger:   ledger,
		tiers:    tiers,
		contract: contract,
		domain:   &Domain{ChainID: newBigInt(chainID), Contract: contract},
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

// SetTierSource replaces the membership lookup.
func (e *Engine) SetTierSource(tiers TierSource) { e.tiers = tiers }

// Domain returns the authorization domain of this contract.
func (e *Engine) Domain() *Domain { return e.domain }

// Contract returns the escrow account.
func (e *Engine) Contract() [20]byte { return e.contract }

func (e *Engine) now() uint64 {
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

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

// Initialise records the owner, the guards and the backend authority.
func (e *Engine) Initialise(owner, guard1, guard2, authority [20]byte) error {
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
		if err := e.gate.Init(guard1, guard2); err != nil {
			return err
		}
		if common.IsZero(authority) {
			return nil
		}
		return e.state.KVPut(authorityKey, authority)
	})
}

// SetBackendAuthority changes the identity whose signatures settle batches.
func (e *Engine) SetBackendAuthority(caller, authority [20]byte) error {
	if common.IsZero(authority) {
		return common.ErrZeroAddress
	}
	return e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		if err := e.state.KVPut(authorityKey, authority); err != nil {
			return err
		}
		e.emit(authorityEvent(authority))
		return nil
	})
}

// SetCreationFee sets the native fee charged on campaign creation.
func (e *Engine) SetCreationFee(caller [20]byte, fee *big.Int) error {
	if fee != nil && fee.Sign() < 0 {
		return ErrInvalidFee
	}
	return e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		if err := e.state.KVPut(feeKey, newBigInt(fee)); err != nil {
			return err
		}
		e.emit(feeEvent(newBigInt(fee)))
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

// TransferOwnership hands the contract to newOwner after guard approval.
func (e *Engine) TransferOwnership(caller, newOwner [20]byte) error {
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
