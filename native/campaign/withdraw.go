package campaign

import (
	"math/big"

	"questchain/native/bank"
	"questchain/native/common"
	"questchain/observability/metrics"
)

// Withdraw pays caller's full pending balance in asset. The balance is zeroed
// before the payout; a failed payout reverts the zeroing.
func (e *Engine) Withdraw(caller [20]byte, asset string) (*big.Int, error) {
	normalized, err := bank.NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	var paid *big.Int
	err = e.run(func() error {
		if err := common.Guard(e.pauses, ModuleName); err != nil {
			return err
		}
		key := pendingKey(normalized, caller)
		balance, err := e.loadAmount(key)
		if err != nil {
			return err
		}
		if balance.Sign() == 0 {
			return common.ErrNoFundsToWithdraw
		}
		if err := e.state.KVPut(key, big.NewInt(0)); err != nil {
			return err
		}
		if err := e.ledger.Transfer(e.contract, caller, normalized, balance); err != nil {
			return common.WrapTransfer(err)
		}
		e.emit(withdrawnEvent(caller, normalized, balance))
		paid = balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveWithdrawal(ModuleName, normalized)
	return paid, nil
}

// WithdrawFees pays the accumulated creation fees to the owner. It needs a
// fresh unanimous guard approval, which it consumes.
func (e *Engine) WithdrawFees(caller [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := e.run(func() error {
		if err := e.owner.Require(caller); err != nil {
			return err
		}
		fees, err := e.loadAmount(feesKey)
		if err != nil {
			return err
		}
		if fees.Sign() == 0 {
			return common.ErrNoFundsToWithdraw
		}
		if err := e.gate.Consume("withdraw_fees"); err != nil {
			return err
		}
		if err := e.state.KVPut(feesKey, big.NewInt(0)); err != nil {
			return err
		}
		if err := e.ledger.Transfer(e.contract, caller, bank.NativeAsset, fees); err != nil {
			return common.WrapTransfer(err)
		}
		e.emit(feesWithdrawnEvent(caller, fees))
		paid = fees
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.Quest().ObserveWithdrawal(ModuleName, bank.NativeAsset)
	metrics.Quest().ObserveGated(ModuleName, "withdraw_fees")
	return paid, nil
}
