package nft

import (
	"errors"
	"math/big"
	"testing"

	"questchain/core/events"
	"questchain/core/state"
	"questchain/crypto"
	"questchain/native/bank"
	"questchain/native/common"
	"questchain/native/guard"
	"questchain/storage"
)

var (
	testOwner    = [20]byte{0x01}
	testGuard1   = [20]byte{0x02}
	testGuard2   = [20]byte{0x03}
	testContract = [20]byte{0xC0}
	alice        = [20]byte{0xA1}
	bob          = [20]byte{0xB0}
)

type fixture struct {
	engine *Engine
	ledger *bank.Ledger
	state  *state.Manager
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mgr := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(mgr)
	engine := NewEngine(mgr, ledger, testContract, bank.NativeAsset)
	rec := &events.Recorder{}
	engine.SetEmitter(rec)
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	if err := engine.Initialise(testOwner, testGuard1, testGuard2); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	for _, acct := range [][20]byte{alice, bob} {
		if err := ledger.Mint(acct, "", big.NewInt(1_000)); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}
	return &fixture{engine: engine, ledger: ledger, state: mgr, events: rec}
}

func (f *fixture) addTier(t *testing.T, price int64, maxSupply, freeMints uint64) *Tier {
	t.Helper()
	tier, err := f.engine.AddTier(testOwner, TierInput{
		Name:      "Explorer",
		Price:     big.NewInt(price),
		MaxSupply: maxSupply,
		PoolLimit: 3,
		URI:       "ipfs://explorer",
		FreeMints: freeMints,
	})
	if err != nil {
		t.Fatalf("add tier: %v", err)
	}
	return tier
}

func (f *fixture) approve(t *testing.T) {
	t.Helper()
	if _, err := f.engine.RecordGuardDecision(testGuard1, true); err != nil {
		t.Fatalf("guard1: %v", err)
	}
	combined, err := f.engine.RecordGuardDecision(testGuard2, true)
	if err != nil || !combined {
		t.Fatalf("guard2: combined=%v err=%v", combined, err)
	}
}

func TestAddTierValidation(t *testing.T) {
	f := newFixture(t)
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	valid := TierInput{Name: "Gold", Price: big.NewInt(1), MaxSupply: 2, PoolLimit: 1, URI: "ipfs://gold"}
	cases := []struct {
		name   string
		mutate func(in *TierInput)
		want   error
	}{
		{"empty name", func(in *TierInput) { in.Name = " " }, ErrNameLengthInvalid},
		{"long name", func(in *TierInput) { in.Name = string(long) }, ErrNameLengthInvalid},
		{"empty uri", func(in *TierInput) { in.URI = "" }, ErrEmptyLocation},
		{"zero supply", func(in *TierInput) { in.MaxSupply = 0 }, ErrSupplyMustBePositive},
		{"zero pool", func(in *TierInput) { in.PoolLimit = 0 }, ErrPoolMustBePositive},
		{"free over supply", func(in *TierInput) { in.FreeMints = 3 }, ErrFreeMintExceedsSupply},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			if _, err := f.engine.AddTier(testOwner, in); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, err := f.engine.AddTier(alice, valid); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	tier, err := f.engine.AddTier(testOwner, valid)
	if err != nil {
		t.Fatalf("add tier: %v", err)
	}
	if tier.ID != 1 || !tier.Active || tier.Minted != 0 {
		t.Fatalf("unexpected tier %+v", tier)
	}
	if count, _ := f.engine.TierCount(); count != 1 {
		t.Fatalf("expected one tier, got %d", count)
	}
}

func TestSingleFreeUnitExhaustsSupply(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 50, 1, 1)

	result, err := f.engine.Mint(alice, tier.ID, big.NewInt(0))
	if err != nil {
		t.Fatalf("free mint: %v", err)
	}
	if result.Path != MintPathFree || result.Charged.Sign() != 0 || result.Level != tier.ID {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := f.engine.Mint(bob, tier.ID, big.NewInt(50)); !errors.Is(err, ErrMaxSupplyReached) {
		t.Fatalf("expected ErrMaxSupplyReached, got %v", err)
	}
	stored, _ := f.engine.Tier(tier.ID)
	if stored.Minted != 1 || stored.FreeMints != 0 {
		t.Fatalf("unexpected counters %+v", stored)
	}
	if owner, _ := f.engine.OwnerOf(result.TokenID); owner != alice {
		t.Fatalf("token not issued to alice")
	}
	if uri, _ := f.engine.TokenURI(result.TokenID); uri != "ipfs://explorer" {
		t.Fatalf("unexpected uri %q", uri)
	}
}

func TestFreeMintPrecedenceThenPayment(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 40, 5, 1)

	// The free unit is taken even when value is attached.
	first, err := f.engine.Mint(alice, tier.ID, big.NewInt(40))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if first.Path != MintPathFree {
		t.Fatalf("expected free path, got %s", first.Path)
	}
	if bal, _ := f.ledger.BalanceOf(alice, ""); bal.Int64() != 1_000 {
		t.Fatalf("free mint charged alice: %s", bal)
	}
	if _, err := f.engine.Mint(alice, tier.ID, big.NewInt(40)); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted, got %v", err)
	}

	if _, err := f.engine.Mint(bob, tier.ID, big.NewInt(39)); !errors.Is(err, ErrInsufficientPayment) {
		t.Fatalf("expected ErrInsufficientPayment, got %v", err)
	}
	paid, err := f.engine.Mint(bob, tier.ID, big.NewInt(45))
	if err != nil {
		t.Fatalf("paid mint: %v", err)
	}
	if paid.Path != MintPathPaid || paid.Charged.Int64() != 45 {
		t.Fatalf("unexpected paid result %+v", paid)
	}
	if bal, _ := f.ledger.BalanceOf(bob, ""); bal.Int64() != 955 {
		t.Fatalf("unexpected bob balance %s", bal)
	}
	if proceeds, _ := f.engine.Proceeds(); proceeds.Int64() != 45 {
		t.Fatalf("unexpected proceeds %s", proceeds)
	}
	if len(f.events.OfType(EventTypeMinted)) != 2 {
		t.Fatalf("expected two mint events")
	}
}

func TestLevelIsHighestTierMinted(t *testing.T) {
	f := newFixture(t)
	low := f.addTier(t, 0, 10, 0)
	high := f.addTier(t, 0, 10, 0)

	if lvl, _ := f.engine.LevelOf(alice); lvl != 0 {
		t.Fatalf("expected level 0 before minting, got %d", lvl)
	}
	if _, err := f.engine.Mint(alice, high.ID, nil); err != nil {
		t.Fatalf("mint high: %v", err)
	}
	if _, err := f.engine.Mint(alice, low.ID, nil); err != nil {
		t.Fatalf("mint low: %v", err)
	}
	if lvl, _ := f.engine.LevelOf(alice); lvl != high.ID {
		t.Fatalf("level dropped to %d", lvl)
	}
	if n, _ := f.engine.BalanceOf(alice); n != 2 {
		t.Fatalf("expected two tokens, got %d", n)
	}
}

func TestTierChecks(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 0, 10, 0)

	if _, err := f.engine.Mint(alice, 0, nil); !errors.Is(err, ErrInvalidTierIndex) {
		t.Fatalf("expected ErrInvalidTierIndex for 0, got %v", err)
	}
	if _, err := f.engine.Mint(alice, tier.ID+1, nil); !errors.Is(err, ErrInvalidTierIndex) {
		t.Fatalf("expected ErrInvalidTierIndex, got %v", err)
	}
	if err := f.engine.SetTierActive(testOwner, tier.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.engine.Mint(alice, tier.ID, nil); !errors.Is(err, ErrTierNotActive) {
		t.Fatalf("expected ErrTierNotActive, got %v", err)
	}
	if _, err := f.engine.UpdateTier(testOwner, tier.ID, TierInput{
		Name: "Renamed", MaxSupply: 10, PoolLimit: 2, URI: "ipfs://renamed",
	}, true); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := f.engine.Mint(alice, tier.ID, nil); err != nil {
		t.Fatalf("mint after reactivation: %v", err)
	}
	if _, err := f.engine.UpdateTier(testOwner, tier.ID, TierInput{
		Name: "Renamed", MaxSupply: 0, PoolLimit: 2, URI: "ipfs://renamed",
	}, true); !errors.Is(err, ErrSupplyMustBePositive) {
		t.Fatalf("expected ErrSupplyMustBePositive, got %v", err)
	}
}

func TestWhitelistRedeemsOnce(t *testing.T) {
	f := newFixture(t)
	first := f.addTier(t, 100, 10, 0)
	second := f.addTier(t, 100, 10, 0)

	tree, err := crypto.NewWhitelistTree([][20]byte{alice, {0x77}, {0x78}})
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	proof, _ := tree.Proof(0)

	if _, err := f.engine.WhitelistMint(alice, proof, first.ID); !errors.Is(err, ErrRootNotSet) {
		t.Fatalf("expected ErrRootNotSet, got %v", err)
	}
	if err := f.engine.SetWhitelistRoot(testOwner, tree.Root()); err != nil {
		t.Fatalf("set root: %v", err)
	}
	if _, err := f.engine.WhitelistMint(bob, proof, first.ID); !errors.Is(err, ErrInvalidProof) {
		t.Fatalf("expected ErrInvalidProof, got %v", err)
	}
	result, err := f.engine.WhitelistMint(alice, proof, first.ID)
	if err != nil {
		t.Fatalf("whitelist mint: %v", err)
	}
	if result.Path != MintPathWhitelist || result.Charged.Sign() != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := f.engine.WhitelistMint(alice, proof, second.ID); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("second whitelist redemption: %v", err)
	}
	if _, err := f.engine.Mint(alice, first.ID, big.NewInt(100)); !errors.Is(err, ErrAlreadyMinted) {
		t.Fatalf("same tier twice: %v", err)
	}
	if used, _ := f.engine.WhitelistUsed(alice); !used {
		t.Fatalf("whitelist flag not set")
	}
}

func TestWhitelistLeavesFreeAllotment(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 10, 10, 1)
	tree, _ := crypto.NewWhitelistTree([][20]byte{alice, bob})
	if err := f.engine.SetWhitelistRoot(testOwner, tree.Root()); err != nil {
		t.Fatalf("set root: %v", err)
	}
	proof, _ := tree.Proof(0)
	if _, err := f.engine.WhitelistMint(alice, proof, tier.ID); err != nil {
		t.Fatalf("whitelist mint: %v", err)
	}
	stored, _ := f.engine.Tier(tier.ID)
	if stored.FreeMints != 1 {
		t.Fatalf("whitelist consumed free allotment: %d", stored.FreeMints)
	}
	res, err := f.engine.Mint(bob, tier.ID, nil)
	if err != nil || res.Path != MintPathFree {
		t.Fatalf("bob free mint: res=%+v err=%v", res, err)
	}
}

func TestFailedPaymentRevertsMint(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 2_000, 10, 0)

	before := f.state.Pending()
	if _, err := f.engine.Mint(alice, tier.ID, big.NewInt(2_000)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if f.state.Pending() != before {
		t.Fatalf("failed mint left writes behind")
	}
	rec, _ := f.engine.MintRecord(alice, tier.ID)
	if rec.Minted {
		t.Fatalf("mint flag persisted after revert")
	}
	if len(f.events.OfType(EventTypeMinted)) != 0 {
		t.Fatalf("mint event leaked from reverted call")
	}
}

func TestPauseBlocksMint(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 0, 10, 0)
	if err := f.engine.SetPaused(alice, true); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.engine.SetPaused(testOwner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.engine.Mint(alice, tier.ID, nil); !errors.Is(err, common.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if _, err := f.engine.WhitelistMint(alice, nil, tier.ID); !errors.Is(err, common.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	_ = f.engine.SetPaused(testOwner, false)
	if _, err := f.engine.Mint(alice, tier.ID, nil); err != nil {
		t.Fatalf("mint after unpause: %v", err)
	}
}

func TestWithdrawProceedsNeedsFreshApproval(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 100, 10, 0)
	if _, err := f.engine.Mint(alice, tier.ID, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := f.engine.WithdrawProceeds(testOwner); !errors.Is(err, guard.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	f.approve(t)
	if _, err := f.engine.WithdrawProceeds(alice); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	paid, err := f.engine.WithdrawProceeds(testOwner)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if paid.Int64() != 100 {
		t.Fatalf("unexpected payout %s", paid)
	}
	if bal, _ := f.ledger.BalanceOf(testOwner, ""); bal.Int64() != 100 {
		t.Fatalf("owner not paid: %s", bal)
	}
	status, _ := f.engine.GuardStatus()
	if status.Combined() {
		t.Fatalf("approval survived withdrawal")
	}
	if _, err := f.engine.WithdrawProceeds(testOwner); !errors.Is(err, common.ErrNoFundsToWithdraw) {
		t.Fatalf("expected ErrNoFundsToWithdraw, got %v", err)
	}
	if err := f.engine.TransferOwnership(testOwner, bob); !errors.Is(err, guard.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestWithdrawRollsBackOnRejectedPayout(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 100, 10, 0)
	if _, err := f.engine.Mint(alice, tier.ID, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.approve(t)
	f.ledger.SetReceiver(testOwner, func([20]byte, string, *big.Int) error {
		return errors.New("refuse")
	})
	if _, err := f.engine.WithdrawProceeds(testOwner); !errors.Is(err, common.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	if proceeds, _ := f.engine.Proceeds(); proceeds.Int64() != 100 {
		t.Fatalf("proceeds not restored: %s", proceeds)
	}
	status, _ := f.engine.GuardStatus()
	if !status.Combined() {
		t.Fatalf("approval consumed by a reverted call")
	}
}

func TestWithdrawRejectsReentry(t *testing.T) {
	f := newFixture(t)
	tier := f.addTier(t, 100, 10, 0)
	if _, err := f.engine.Mint(alice, tier.ID, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	f.approve(t)
	var inner error
	f.ledger.SetReceiver(testOwner, func([20]byte, string, *big.Int) error {
		_, inner = f.engine.WithdrawProceeds(testOwner)
		return nil
	})
	if _, err := f.engine.WithdrawProceeds(testOwner); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !errors.Is(inner, common.ErrReentrant) {
		t.Fatalf("expected nested call to fail with ErrReentrant, got %v", inner)
	}
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	f.approve(t)
	if err := f.engine.TransferOwnership(testOwner, [20]byte{}); !errors.Is(err, common.ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if err := f.engine.TransferOwnership(testOwner, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if owner, _ := f.engine.Owner(); owner != bob {
		t.Fatalf("owner not updated")
	}
	if _, err := f.engine.AddTier(testOwner, TierInput{Name: "x", MaxSupply: 1, PoolLimit: 1, URI: "u"}); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("previous owner kept rights: %v", err)
	}
	if len(f.events.OfType(EventTypeOwnershipTransferred)) != 1 {
		t.Fatalf("expected ownership event")
	}
}

func TestInitialiseOnce(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.Initialise(bob, testGuard1, testGuard2); !errors.Is(err, ErrAlreadyInitialised) {
		t.Fatalf("expected ErrAlreadyInitialised, got %v", err)
	}
	fresh := NewEngine(state.NewManager(storage.NewMemDB()), nil, testContract, "")
	if err := fresh.Initialise(testOwner, testGuard1, testGuard1); !errors.Is(err, guard.ErrInvalidGuardAddress) {
		t.Fatalf("expected ErrInvalidGuardAddress, got %v", err)
	}
	if owner, _ := fresh.Owner(); owner != ([20]byte{}) {
		t.Fatalf("failed initialise left an owner")
	}
}
