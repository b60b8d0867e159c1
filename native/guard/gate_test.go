package guard

import (
	"errors"
	"testing"

	"questchain/core/events"
	"questchain/core/state"
	"questchain/storage"
)

var (
	guardA = [20]byte{0x0A}
	guardB = [20]byte{0x0B}
)

func newTestGate(t *testing.T) (*Gate, *events.Recorder) {
	t.Helper()
	gate := NewGate(state.NewManager(storage.NewMemDB()), "Campaign")
	rec := &events.Recorder{}
	gate.SetEmitter(rec)
	if err := gate.Init(guardA, guardB); err != nil {
		t.Fatalf("init: %v", err)
	}
	return gate, rec
}

func TestInitRejectsInvalidGuards(t *testing.T) {
	gate := NewGate(state.NewManager(storage.NewMemDB()), "nft")
	cases := [][2][20]byte{
		{guardA, guardA},
		{{}, guardB},
		{guardA, {}},
	}
	for _, tc := range cases {
		if err := gate.Init(tc[0], tc[1]); !errors.Is(err, ErrInvalidGuardAddress) {
			t.Fatalf("expected ErrInvalidGuardAddress for %x/%x, got %v", tc[0], tc[1], err)
		}
	}
	if err := gate.Init(guardA, guardB); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := gate.Init(guardA, guardB); !errors.Is(err, ErrGateInitialised) {
		t.Fatalf("expected ErrGateInitialised, got %v", err)
	}
}

func TestDecisionStateMachine(t *testing.T) {
	gate, rec := newTestGate(t)

	if _, err := gate.RecordDecision([20]byte{0xFF}, true); !errors.Is(err, ErrNotAGuard) {
		t.Fatalf("expected ErrNotAGuard, got %v", err)
	}
	combined, err := gate.RecordDecision(guardA, true)
	if err != nil || combined {
		t.Fatalf("first approval: combined=%v err=%v", combined, err)
	}
	status, _ := gate.Status()
	if status.Phase() != PhaseOneApproved {
		t.Fatalf("expected one approved, got %s", status.Phase())
	}
	combined, err = gate.RecordDecision(guardB, true)
	if err != nil || !combined {
		t.Fatalf("second approval: combined=%v err=%v", combined, err)
	}
	status, _ = gate.Status()
	if status.Phase() != PhaseBothApproved {
		t.Fatalf("expected both approved, got %s", status.Phase())
	}

	// A guard can withdraw a decision before it is consumed.
	combined, _ = gate.RecordDecision(guardA, false)
	if combined {
		t.Fatalf("withdrawn decision should clear combined approval")
	}
	if err := gate.Consume("withdraw"); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
	if len(rec.OfType(EventTypeDecision)) != 3 {
		t.Fatalf("expected 3 decision events")
	}
}

func TestConsumeResetsApproval(t *testing.T) {
	gate, rec := newTestGate(t)
	_, _ = gate.RecordDecision(guardA, true)
	_, _ = gate.RecordDecision(guardB, true)

	if err := gate.Consume("withdraw"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	status, _ := gate.Status()
	if status.Combined() || status.Phase() != PhasePending {
		t.Fatalf("approval not reset after consume: %+v", status)
	}
	if err := gate.Consume("withdraw"); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("stale approval replayed: %v", err)
	}
	evts := rec.OfType(EventTypeConsumed)
	if len(evts) != 1 || evts[0].Attr("module") != "campaign" || evts[0].Attr("operation") != "withdraw" {
		t.Fatalf("unexpected consumed events: %+v", evts)
	}
}

func TestUninitialisedGate(t *testing.T) {
	gate := NewGate(state.NewManager(storage.NewMemDB()), "nft")
	if _, err := gate.RecordDecision(guardA, true); !errors.Is(err, ErrGateUninitialised) {
		t.Fatalf("expected ErrGateUninitialised, got %v", err)
	}
	if err := gate.Consume("withdraw"); !errors.Is(err, ErrGateUninitialised) {
		t.Fatalf("expected ErrGateUninitialised, got %v", err)
	}
}
