package bank

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"questchain/core/events"
	"questchain/native/common"
)

// NativeAsset is the symbol of the chain's native value.
const NativeAsset = "QST"

const maxSymbolLength = 12

var (
	ErrInvalidAsset        = errors.New("bank: invalid asset")
	ErrInvalidAmount       = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrAmountOverflow      = errors.New("bank: amount overflows uint256")
	ErrRecipientRejected   = errors.New("bank: recipient rejected transfer")
)

// Receiver is invoked after value lands at a hooked account. Returning an error
// rejects the transfer. Receivers model contract recipients and may call back
// into other modules.
type Receiver func(from [20]byte, asset string, amount *big.Int) error

// Ledger keeps fungible balances for the native asset and symbol-keyed tokens.
type Ledger struct {
	store     common.KV
	receivers map[[20]byte]Receiver
	emitter   events.Emitter
}

// NewLedger constructs a ledger over store.
func NewLedger(store common.KV) *Ledger {
	return &Ledger{store: store, receivers: make(map[[20]byte]Receiver), emitter: events.NoopEmitter{}}
}

// SetEmitter routes transfer and supply events; nil discards them.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt events.Event) {
	if l.emitter != nil {
		l.emitter.Emit(evt)
	}
}

// NormalizeAsset returns the canonical symbol; empty means native.
func NormalizeAsset(asset string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(asset))
	if trimmed == "" {
		return NativeAsset, nil
	}
	if len(trimmed) > maxSymbolLength {
		return "", ErrInvalidAsset
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", ErrInvalidAsset
		}
	}
	return trimmed, nil
}

func balanceKey(asset string, addr [20]byte) []byte {
	return []byte(fmt.Sprintf("bank/balance/%s/%x", asset, addr))
}

func supplyKey(asset string) []byte {
	return []byte("bank/supply/" + asset)
}

// SetReceiver installs a hook for addr; nil removes it.
func (l *Ledger) SetReceiver(addr [20]byte, fn Receiver) {
	if fn == nil {
		delete(l.receivers, addr)
		return
	}
	l.receivers[addr] = fn
}

func (l *Ledger) load(key []byte) (*uint256.Int, error) {
	if l == nil || l.store == nil {
		return nil, common.ErrNilState
	}
	stored := new(big.Int)
	ok, err := l.store.KVGet(key, stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int), nil
	}
	value, overflow := uint256.FromBig(stored)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return value, nil
}

func (l *Ledger) save(key []byte, value *uint256.Int) error {
	return l.store.KVPut(key, value.ToBig())
}

func toUint256(amount *big.Int) (*uint256.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	value, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, ErrAmountOverflow
	}
	return value, nil
}

// BalanceOf returns the balance of addr in asset.
func (l *Ledger) BalanceOf(addr [20]byte, asset string) (*big.Int, error) {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	bal, err := l.load(balanceKey(normalized, addr))
	if err != nil {
		return nil, err
	}
	return bal.ToBig(), nil
}

// TotalSupply returns the outstanding amount of asset.
func (l *Ledger) TotalSupply(asset string) (*big.Int, error) {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return nil, err
	}
	supply, err := l.load(supplyKey(normalized))
	if err != nil {
		return nil, err
	}
	return supply.ToBig(), nil
}

func (l *Ledger) adjust(key []byte, delta *uint256.Int, add bool) (*uint256.Int, error) {
	current, err := l.load(key)
	if err != nil {
		return nil, err
	}
	next := new(uint256.Int)
	if add {
		if _, overflow := next.AddOverflow(current, delta); overflow {
			return nil, ErrAmountOverflow
		}
	} else {
		if current.Lt(delta) {
			return nil, ErrInsufficientBalance
		}
		next.Sub(current, delta)
	}
	if err := l.save(key, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Mint credits newly issued value to addr.
func (l *Ledger) Mint(addr [20]byte, asset string, amount *big.Int) error {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	total, err := l.adjust(supplyKey(normalized), value, true)
	if err != nil {
		return err
	}
	if _, err := l.adjust(balanceKey(normalized, addr), value, true); err != nil {
		return err
	}
	l.emit(events.TokenSupply{
		Token:   normalized,
		Account: addr,
		Total:   total.ToBig(),
		Delta:   value.ToBig(),
		Reason:  events.SupplyReasonMint,
	})
	return nil
}

// Burn destroys value held by addr.
func (l *Ledger) Burn(addr [20]byte, asset string, amount *big.Int) error {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if _, err := l.adjust(balanceKey(normalized, addr), value, false); err != nil {
		return err
	}
	total, err := l.adjust(supplyKey(normalized), value, false)
	if err != nil {
		return err
	}
	l.emit(events.TokenSupply{
		Token:   normalized,
		Account: addr,
		Total:   total.ToBig(),
		Delta:   new(big.Int).Neg(value.ToBig()),
		Reason:  events.SupplyReasonBurn,
	})
	return nil
}

// Transfer moves amount from one account to another and then runs the
// recipient hook, if any. Callers are expected to run inside an atomic call so
// a rejected transfer reverts the balance movement.
func (l *Ledger) Transfer(from, to [20]byte, asset string, amount *big.Int) error {
	normalized, err := NormalizeAsset(asset)
	if err != nil {
		return err
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	if _, err := l.adjust(balanceKey(normalized, from), value, false); err != nil {
		return err
	}
	if _, err := l.adjust(balanceKey(normalized, to), value, true); err != nil {
		return err
	}
	l.emit(events.Transfer{Asset: normalized, From: from, To: to, Amount: value.ToBig()})
	if hook, ok := l.receivers[to]; ok {
		if err := hook(from, normalized, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("%w: %v", ErrRecipientRejected, err)
		}
	}
	return nil
}
