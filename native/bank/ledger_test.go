package bank

import (
	"errors"
	"math/big"
	"testing"

	"questchain/core/events"
	"questchain/core/state"
	"questchain/storage"
)

func newTestLedger() (*Ledger, *state.Manager) {
	mgr := state.NewManager(storage.NewMemDB())
	return NewLedger(mgr), mgr
}

func TestMintTransferBurn(t *testing.T) {
	ledger, _ := newTestLedger()
	alice, bob := [20]byte{0xA1}, [20]byte{0xB0}

	if err := ledger.Mint(alice, "", big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, "qst", big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.Burn(bob, NativeAsset, big.NewInt(10)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	aliceBal, _ := ledger.BalanceOf(alice, "")
	bobBal, _ := ledger.BalanceOf(bob, "")
	supply, _ := ledger.TotalSupply("")
	if aliceBal.Int64() != 60 || bobBal.Int64() != 30 || supply.Int64() != 90 {
		t.Fatalf("unexpected balances alice=%s bob=%s supply=%s", aliceBal, bobBal, supply)
	}
	if err := ledger.Transfer(bob, alice, "", big.NewInt(31)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := ledger.Transfer(bob, alice, "", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestOverflowRejected(t *testing.T) {
	ledger, _ := newTestLedger()
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	if err := ledger.Mint([20]byte{1}, "", max); err != nil {
		t.Fatalf("mint max: %v", err)
	}
	if err := ledger.Mint([20]byte{2}, "", big.NewInt(1)); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	tooBig := new(big.Int).Lsh(big.NewInt(1), 256)
	if err := ledger.Mint([20]byte{3}, "USDC", tooBig); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow for 2^256, got %v", err)
	}
}

func TestReceiverRejectionSurfaces(t *testing.T) {
	ledger, mgr := newTestLedger()
	from, to := [20]byte{1}, [20]byte{2}
	if err := ledger.Mint(from, "USDC", big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	ledger.SetReceiver(to, func([20]byte, string, *big.Int) error { return errors.New("no thanks") })
	snap := mgr.Snapshot()
	if err := ledger.Transfer(from, to, "usdc", big.NewInt(5)); !errors.Is(err, ErrRecipientRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	mgr.RevertToSnapshot(snap)
	bal, _ := ledger.BalanceOf(from, "USDC")
	if bal.Int64() != 5 {
		t.Fatalf("revert did not restore sender balance: %s", bal)
	}
	ledger.SetReceiver(to, nil)
	if err := ledger.Transfer(from, to, "USDC", big.NewInt(5)); err != nil {
		t.Fatalf("transfer after hook removal: %v", err)
	}
}

func TestNormalizeAsset(t *testing.T) {
	if got, _ := NormalizeAsset(" usdc "); got != "USDC" {
		t.Fatalf("unexpected symbol %q", got)
	}
	for _, bad := range []string{"US-DC", "ABCDEFGHIJKLMN"} {
		if _, err := NormalizeAsset(bad); !errors.Is(err, ErrInvalidAsset) {
			t.Fatalf("expected %q to be invalid", bad)
		}
	}
}

func TestLedgerEmitsTransferAndSupply(t *testing.T) {
	ledger, _ := newTestLedger()
	rec := &events.Recorder{}
	ledger.SetEmitter(rec)
	alice, bob := [20]byte{0xA1}, [20]byte{0xB0}

	if err := ledger.Mint(alice, "gem", big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ledger.Transfer(alice, bob, "gem", big.NewInt(20)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.Burn(bob, "gem", big.NewInt(5)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if err := ledger.Transfer(bob, alice, "gem", big.NewInt(100)); err == nil {
		t.Fatalf("expected overdraft to fail")
	}

	supply := rec.OfType(events.TypeTokenSupply)
	if len(supply) != 2 {
		t.Fatalf("expected 2 supply events, got %d", len(supply))
	}
	if supply[0].Attr("total") != "50" || supply[0].Attr("reason") != events.SupplyReasonMint {
		t.Fatalf("unexpected mint event %+v", supply[0].Attributes)
	}
	if supply[1].Attr("total") != "45" || supply[1].Attr("delta") != "-5" {
		t.Fatalf("unexpected burn event %+v", supply[1].Attributes)
	}
	transfers := rec.OfType(events.TypeTransfer)
	if len(transfers) != 1 || transfers[0].Attr("amount") != "20" || transfers[0].Attr("asset") != "GEM" {
		t.Fatalf("unexpected transfers %+v", transfers)
	}
}
