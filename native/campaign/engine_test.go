package campaign

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
	"questchain/native/nft"
	"questchain/storage"
)

const testStart = int64(1_700_000_000)

var (
	testOwner    = [20]byte{0x01}
	testGuard1   = [20]byte{0x02}
	testGuard2   = [20]byte{0x03}
	testContract = [20]byte{0xCA}
	creator      = [20]byte{0xC1}
	alice        = [20]byte{0xA1}
	bob          = [20]byte{0xB0}
	carol        = [20]byte{0xCC}
	dave         = [20]byte{0xDD}
)

type stubTiers struct {
	levels map[[20]byte]uint64
	pool   uint64
	err    error
}

func (s *stubTiers) LevelOf(account [20]byte) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.levels[account], nil
}

func (s *stubTiers) TierInfo(id uint64) (*TierInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &TierInfo{ID: id, PoolLimit: s.pool, Active: true}, nil
}

type fixture struct {
	engine    *Engine
	ledger    *bank.Ledger
	state     *state.Manager
	events    *events.Recorder
	tiers     *stubTiers
	authority *crypto.PrivateKey
	now       int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	mgr := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(mgr)
	tiers := &stubTiers{levels: map[[20]byte]uint64{creator: 1}, pool: 5}
	f := &fixture{
		ledger:    ledger,
		state:     mgr,
		events:    &events.Recorder{},
		tiers:     tiers,
		authority: key,
		now:       testStart,
	}
	f.engine = NewEngine(mgr, ledger, tiers, testContract, big.NewInt(187))
	f.engine.SetEmitter(f.events)
	f.engine.SetNowFunc(func() int64 { return f.now })
	if err := f.engine.Initialise(testOwner, testGuard1, testGuard2, key.PubKey().Address().Raw()); err != nil {
		t.Fatalf("initialise: %v", err)
	}
	for _, acct := range [][20]byte{creator, alice, bob} {
		if err := ledger.Mint(acct, "", big.NewInt(10_000)); err != nil {
			t.Fatalf("fund: %v", err)
		}
	}
	return f
}

func (f *fixture) create(t *testing.T, escrow int64, target uint64) *Campaign {
	t.Helper()
	c, err := f.engine.CreateCampaign(creator, CampaignInput{
		Title:       "Weekly quest",
		Description: "Complete three onboarding tasks",
		Target:      target,
		Duration:    3600,
		Escrow:      big.NewInt(escrow),
	})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

func (f *fixture) join(t *testing.T, id uint64, accounts ...[20]byte) {
	t.Helper()
	for _, acct := range accounts {
		if err := f.engine.RegisterCampaign(acct, id); err != nil {
			t.Fatalf("register %x: %v", acct[:1], err)
		}
		if _, err := f.engine.CompleteCampaign(acct, id); err != nil {
			t.Fatalf("complete %x: %v", acct[:1], err)
		}
	}
}

func (f *fixture) signed(t *testing.T, account [20]byte, ids []uint64, nonce uint64) BatchRequest {
	t.Helper()
	sig, err := f.engine.Domain().SignAuthorization(f.authority, account, ids, nonce)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return BatchRequest{Account: account, CampaignIDs: ids, Nonce: nonce, Signature: sig}
}

func (f *fixture) approve(t *testing.T) {
	t.Helper()
	_, _ = f.engine.RecordGuardDecision(testGuard1, true)
	if combined, err := f.engine.RecordGuardDecision(testGuard2, true); err != nil || !combined {
		t.Fatalf("approve: combined=%v err=%v", combined, err)
	}
}

func balance(t *testing.T, l *bank.Ledger, acct [20]byte) int64 {
	t.Helper()
	bal, err := l.BalanceOf(acct, "")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.Int64()
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFixture(t)
	valid := CampaignInput{Title: "t", Description: "d", Target: 4, Duration: 60, Escrow: big.NewInt(100)}
	cases := map[string]func(in *CampaignInput){
		"empty title":       func(in *CampaignInput) { in.Title = "  " },
		"empty description": func(in *CampaignInput) { in.Description = "" },
		"zero target":       func(in *CampaignInput) { in.Target = 0 },
		"zero duration":     func(in *CampaignInput) { in.Duration = 0 },
		"zero escrow":       func(in *CampaignInput) { in.Escrow = big.NewInt(0) },
		"uneven share":      func(in *CampaignInput) { in.Escrow = big.NewInt(101) },
		"bad asset":         func(in *CampaignInput) { in.Asset = "no-such" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			if _, err := f.engine.CreateCampaign(creator, in); !errors.Is(err, ErrInvalidCampaignData) {
				t.Fatalf("expected ErrInvalidCampaignData, got %v", err)
			}
		})
	}
	unlimited := valid
	unlimited.Duration = 0
	unlimited.Unlimited = true
	c, err := f.engine.CreateCampaign(creator, unlimited)
	if err != nil {
		t.Fatalf("unlimited campaign: %v", err)
	}
	if c.EndsAt != 0 || c.Share.Int64() != 25 || c.ID != 1 {
		t.Fatalf("unexpected campaign %+v", c)
	}
	if got := balance(t, f.ledger, creator); got != 9_900 {
		t.Fatalf("escrow not collected, balance %d", got)
	}
}

func TestCreateFailsClosedOnTierLookup(t *testing.T) {
	f := newFixture(t)
	input := CampaignInput{Title: "t", Description: "d", Target: 1, Duration: 60, Escrow: big.NewInt(10)}

	if _, err := f.engine.CreateCampaign(alice, input); !errors.Is(err, ErrNoMembership) {
		t.Fatalf("expected ErrNoMembership, got %v", err)
	}
	f.tiers.err = errors.New("tier contract unreachable")
	if _, err := f.engine.CreateCampaign(creator, input); !errors.Is(err, ErrTierLookup) {
		t.Fatalf("expected ErrTierLookup, got %v", err)
	}
	f.engine.SetTierSource(nil)
	if _, err := f.engine.CreateCampaign(creator, input); !errors.Is(err, ErrNoTierSource) {
		t.Fatalf("expected ErrNoTierSource, got %v", err)
	}
	if count, _ := f.engine.CampaignCount(); count != 0 {
		t.Fatalf("rejected creations assigned ids: %d", count)
	}
}

func TestPoolLimitCapsOpenCampaigns(t *testing.T) {
	f := newFixture(t)
	f.tiers.pool = 1
	first := f.create(t, 10, 1)
	input := CampaignInput{Title: "t", Description: "d", Target: 1, Duration: 60, Escrow: big.NewInt(10)}
	if _, err := f.engine.CreateCampaign(creator, input); !errors.Is(err, ErrPoolLimitReached) {
		t.Fatalf("expected ErrPoolLimitReached, got %v", err)
	}
	// Reaching the target frees the slot.
	f.join(t, first.ID, alice)
	if open, _ := f.engine.OpenCampaigns(creator); open != 0 {
		t.Fatalf("expected no open campaigns, got %d", open)
	}
	if _, err := f.engine.CreateCampaign(creator, input); err != nil {
		t.Fatalf("create after slot freed: %v", err)
	}
}

func TestCreationFeeAccruesAndIsGuarded(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.SetCreationFee(alice, big.NewInt(5)); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := f.engine.SetCreationFee(testOwner, big.NewInt(5)); err != nil {
		t.Fatalf("set fee: %v", err)
	}
	f.create(t, 100, 4)
	if got := balance(t, f.ledger, creator); got != 9_895 {
		t.Fatalf("unexpected creator balance %d", got)
	}
	if _, err := f.engine.WithdrawFees(testOwner); !errors.Is(err, guard.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	f.approve(t)
	paid, err := f.engine.WithdrawFees(testOwner)
	if err != nil || paid.Int64() != 5 {
		t.Fatalf("withdraw fees: paid=%v err=%v", paid, err)
	}
	if _, err := f.engine.WithdrawFees(testOwner); !errors.Is(err, common.ErrNoFundsToWithdraw) {
		t.Fatalf("expected ErrNoFundsToWithdraw, got %v", err)
	}
	if status, _ := f.engine.GuardStatus(); status.Combined() {
		t.Fatalf("approval survived fee withdrawal")
	}
}

func TestRegistrationRules(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 20, 2)

	if err := f.engine.RegisterCampaign(alice, 99); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
	if err := f.engine.RegisterCampaign(alice, c.ID); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.engine.RegisterCampaign(alice, c.ID); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if err := f.engine.RegisterCampaign(bob, c.ID); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if err := f.engine.RegisterCampaign(carol, c.ID); !errors.Is(err, ErrRegistrationFull) {
		t.Fatalf("expected ErrRegistrationFull, got %v", err)
	}
	if _, err := f.engine.CompleteCampaign(carol, c.ID); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := f.engine.CompleteCampaign(alice, c.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.engine.CompleteCampaign(alice, c.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}

	if err := f.engine.SetCampaignActive(testOwner, c.ID, false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := f.engine.CompleteCampaign(bob, c.ID); !errors.Is(err, ErrCampaignNotActive) {
		t.Fatalf("expected ErrCampaignNotActive, got %v", err)
	}
	if err := f.engine.SetCampaignActive(testOwner, c.ID, true); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	f.now += 3600
	if _, err := f.engine.CompleteCampaign(bob, c.ID); !errors.Is(err, ErrCampaignEnded) {
		t.Fatalf("expected ErrCampaignEnded, got %v", err)
	}
}

func TestCompletedCampaignRejectsLateRegistration(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 10, 1)
	f.join(t, c.ID, alice)
	// Registration is full before it is completed, so full wins.
	if err := f.engine.RegisterCampaign(bob, c.ID); !errors.Is(err, ErrRegistrationFull) {
		t.Fatalf("expected ErrRegistrationFull, got %v", err)
	}
}

func TestFinalizeRefundsRemainderOnce(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 100, 4)
	if c.Share.Int64() != 25 {
		t.Fatalf("expected share 25, got %s", c.Share)
	}
	f.join(t, c.ID, alice, bob, carol)

	if _, err := f.engine.FinalizeCampaign(creator, c.ID); !errors.Is(err, ErrCampaignNotEnded) {
		t.Fatalf("expected ErrCampaignNotEnded, got %v", err)
	}
	f.now += 3600
	if _, err := f.engine.FinalizeCampaign(alice, c.ID); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	before := balance(t, f.ledger, creator)
	refund, err := f.engine.FinalizeCampaign(creator, c.ID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if refund.Int64() != 25 || balance(t, f.ledger, creator) != before+25 {
		t.Fatalf("unexpected refund %s", refund)
	}
	stored, _ := f.engine.Campaign(c.ID)
	if stored.Distributed.Int64() != 75 || stored.Completed != 3 || stored.Active {
		t.Fatalf("unexpected campaign state %+v", stored)
	}
	if _, err := f.engine.FinalizeCampaign(creator, c.ID); !errors.Is(err, ErrCampaignClosed) {
		t.Fatalf("expected ErrCampaignClosed, got %v", err)
	}
	if err := f.engine.SetCampaignActive(testOwner, c.ID, true); !errors.Is(err, ErrCampaignClosed) {
		t.Fatalf("closed campaign reactivated: %v", err)
	}
	// Participants can still collect what they earned.
	paid, err := f.engine.Withdraw(alice, "")
	if err != nil || paid.Int64() != 25 {
		t.Fatalf("withdraw after finalize: paid=%v err=%v", paid, err)
	}
	if contract := balance(t, f.ledger, testContract); contract != 50 {
		t.Fatalf("contract should hold the two unclaimed shares, has %d", contract)
	}
}

func TestCancelRollsBackOnRejectedRefund(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 100, 4)
	f.ledger.SetReceiver(creator, func([20]byte, string, *big.Int) error {
		return errors.New("refund refused")
	})
	if _, err := f.engine.CancelCampaign(creator, c.ID); !errors.Is(err, common.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	stored, _ := f.engine.Campaign(c.ID)
	if !stored.Active || stored.Closed {
		t.Fatalf("deactivation survived failed refund: %+v", stored)
	}
	if open, _ := f.engine.OpenCampaigns(creator); open != 1 {
		t.Fatalf("open count changed by reverted call: %d", open)
	}
	if len(f.events.OfType(EventTypeCancelled)) != 0 {
		t.Fatalf("cancel event leaked")
	}
	f.ledger.SetReceiver(creator, nil)
	refund, err := f.engine.CancelCampaign(testOwner, c.ID)
	if err != nil || refund.Int64() != 100 {
		t.Fatalf("owner cancel: refund=%v err=%v", refund, err)
	}
}

func TestWithdrawZeroesBeforePayout(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 100, 4)
	f.join(t, c.ID, alice)

	var nested error
	f.ledger.SetReceiver(alice, func([20]byte, string, *big.Int) error {
		_, nested = f.engine.Withdraw(alice, "")
		return nil
	})
	paid, err := f.engine.Withdraw(alice, "QST")
	if err != nil || paid.Int64() != 25 {
		t.Fatalf("withdraw: paid=%v err=%v", paid, err)
	}
	if !errors.Is(nested, common.ErrReentrant) {
		t.Fatalf("expected ErrReentrant from nested withdraw, got %v", nested)
	}
	if _, err := f.engine.Withdraw(alice, ""); !errors.Is(err, common.ErrNoFundsToWithdraw) {
		t.Fatalf("expected ErrNoFundsToWithdraw, got %v", err)
	}
}

func TestWithdrawRestoresBalanceOnFailure(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 100, 4)
	f.join(t, c.ID, alice)
	f.ledger.SetReceiver(alice, func([20]byte, string, *big.Int) error {
		return errors.New("cannot receive")
	})
	if _, err := f.engine.Withdraw(alice, ""); !errors.Is(err, common.ErrTransferFailed) {
		t.Fatalf("expected ErrTransferFailed, got %v", err)
	}
	pending, _ := f.engine.PendingBalance(alice, "")
	if pending.Int64() != 25 {
		t.Fatalf("pending balance not restored: %s", pending)
	}
}

func TestTokenRewardsWithdrawPerAsset(t *testing.T) {
	f := newFixture(t)
	if err := f.ledger.Mint(creator, "USDC", big.NewInt(90)); err != nil {
		t.Fatalf("mint usdc: %v", err)
	}
	c, err := f.engine.CreateCampaign(creator, CampaignInput{
		Title: "t", Description: "d", Target: 3, Duration: 60, Escrow: big.NewInt(90), Asset: "usdc",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if c.Asset != "USDC" {
		t.Fatalf("asset not normalised: %q", c.Asset)
	}
	f.join(t, c.ID, alice)
	if _, err := f.engine.Withdraw(alice, ""); !errors.Is(err, common.ErrNoFundsToWithdraw) {
		t.Fatalf("native balance should be empty: %v", err)
	}
	paid, err := f.engine.Withdraw(alice, "USDC")
	if err != nil || paid.Int64() != 30 {
		t.Fatalf("withdraw usdc: paid=%v err=%v", paid, err)
	}
	if bal, _ := f.ledger.BalanceOf(alice, "USDC"); bal.Int64() != 30 {
		t.Fatalf("usdc not paid: %s", bal)
	}
}

func TestPauseBlocksParticipants(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, 100, 4)
	if err := f.engine.SetPaused(testOwner, true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := f.engine.RegisterCampaign(alice, c.ID); !errors.Is(err, common.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	req := f.signed(t, alice, []uint64{c.ID}, 0)
	if _, err := f.engine.SettleBatch(alice, req); !errors.Is(err, common.ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if nonce, _ := f.engine.Nonce(alice); nonce != 0 {
		t.Fatalf("paused settlement advanced nonce")
	}
}

func TestOwnershipTransferConsumesApproval(t *testing.T) {
	f := newFixture(t)
	if err := f.engine.TransferOwnership(testOwner, bob); !errors.Is(err, guard.ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	f.approve(t)
	if err := f.engine.TransferOwnership(testOwner, bob); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if owner, _ := f.engine.Owner(); owner != bob {
		t.Fatalf("owner not updated")
	}
	if err := f.engine.SetBackendAuthority(testOwner, dave); !errors.Is(err, common.ErrNotOwner) {
		t.Fatalf("previous owner kept rights: %v", err)
	}
	if err := f.engine.SetBackendAuthority(bob, dave); err != nil {
		t.Fatalf("set authority: %v", err)
	}
	if got, _ := f.engine.BackendAuthority(); got != dave {
		t.Fatalf("authority not updated")
	}
}

func TestNFTTierSource(t *testing.T) {
	mgr := state.NewManager(storage.NewMemDB())
	ledger := bank.NewLedger(mgr)
	nftEngine := nft.NewEngine(mgr, ledger, [20]byte{0xEE}, bank.NativeAsset)
	if err := nftEngine.Initialise(testOwner, testGuard1, testGuard2); err != nil {
		t.Fatalf("nft init: %v", err)
	}
	tier, err := nftEngine.AddTier(testOwner, nft.TierInput{
		Name: "Creator", MaxSupply: 10, PoolLimit: 1, URI: "ipfs://creator",
	})
	if err != nil {
		t.Fatalf("add tier: %v", err)
	}
	engine := NewEngine(mgr, ledger, NFTTiers{Engine: nftEngine}, testContract, big.NewInt(1))
	if err := engine.Initialise(testOwner, testGuard1, testGuard2, dave); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := ledger.Mint(creator, "", big.NewInt(100)); err != nil {
		t.Fatalf("fund: %v", err)
	}
	input := CampaignInput{Title: "t", Description: "d", Target: 2, Duration: 60, Escrow: big.NewInt(20)}
	if _, err := engine.CreateCampaign(creator, input); !errors.Is(err, ErrNoMembership) {
		t.Fatalf("expected ErrNoMembership, got %v", err)
	}
	if _, err := nftEngine.Mint(creator, tier.ID, nil); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := engine.CreateCampaign(creator, input); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.CreateCampaign(creator, input); !errors.Is(err, ErrPoolLimitReached) {
		t.Fatalf("expected ErrPoolLimitReached, got %v", err)
	}
	if _, err := (NFTTiers{}).LevelOf(creator); !errors.Is(err, ErrNoTierSource) {
		t.Fatalf("expected ErrNoTierSource, got %v", err)
	}
}
