// Package guard implements the two-party approval gate that protects fund
// withdrawal and ownership transfer.
package guard

import (
	"errors"
	"strings"

	"questchain/core/events"
	"questchain/native/common"
)

var (
	ErrNotAGuard           = errors.New("guard: caller is not a guard")
	ErrNotApproved         = errors.New("guard: operation not approved by both guards")
	ErrInvalidGuardAddress = errors.New("guard: guards must be distinct non-zero addresses")
	ErrGateInitialised     = errors.New("guard: gate already initialised")
	ErrGateUninitialised   = errors.New("guard: gate not initialised")
)

// Phase summarises the approval progress.
type Phase uint8

const (
	PhasePending Phase = iota
	PhaseOneApproved
	PhaseBothApproved
)

func (p Phase) String() string {
	switch p {
	case PhaseOneApproved:
		return "one_approved"
	case PhaseBothApproved:
		return "both_approved"
	default:
		return "pending"
	}
}

// Status is the persisted gate record.
type Status struct {
	Guard1    [20]byte
	Guard2    [20]byte
	Decision1 bool
	Decision2 bool
}

// Combined is the conjunction of both decisions.
func (s *Status) Combined() bool {
	return s != nil && s.Decision1 && s.Decision2
}

// Phase derives the state machine position from the two decisions.
func (s *Status) Phase() Phase {
	switch {
	case s == nil:
		return PhasePending
	case s.Decision1 && s.Decision2:
		return PhaseBothApproved
	case s.Decision1 || s.Decision2:
		return PhaseOneApproved
	default:
		return PhasePending
	}
}

// IsGuard reports whether addr is one of the two guards.
func (s *Status) IsGuard(addr [20]byte) bool {
	return s != nil && (addr == s.Guard1 || addr == s.Guard2)
}

// Gate persists the approval record of one module. Mutations are expected to
// run inside the owning module's atomic call.
type Gate struct {
	store   common.KV
	module  string
	key     []byte
	emitter events.Emitter
}

// NewGate binds a gate for module to store.
func NewGate(store common.KV, module string) *Gate {
	normalized := strings.ToLower(strings.TrimSpace(module))
	return &Gate{
		store:   store,
		module:  normalized,
		key:     []byte("guard/" + normalized),
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event sink.
func (g *Gate) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		g.emitter = events.NoopEmitter{}
		return
	}
	g.emitter = emitter
}

func (g *Gate) load() (*Status, error) {
	if g == nil || g.store == nil {
		return nil, common.ErrNilState
	}
	status := new(Status)
	ok, err := g.store.KVGet(g.key, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrGateUninitialised
	}
	return status, nil
}

// Init records the two guards. It may only run once.
func (g *Gate) Init(guard1, guard2 [20]byte) error {
	if common.IsZero(guard1) || common.IsZero(guard2) || guard1 == guard2 {
		return ErrInvalidGuardAddress
	}
	if _, err := g.load(); err == nil {
		return ErrGateInitialised
	} else if !errors.Is(err, ErrGateUninitialised) {
		return err
	}
	return g.store.KVPut(g.key, &Status{Guard1: guard1, Guard2: guard2})
}

// Status returns a copy of the gate record.
func (g *Gate) Status() (*Status, error) {
	return g.load()
}

// RecordDecision stores caller's decision and returns the combined approval.
func (g *Gate) RecordDecision(caller [20]byte, decision bool) (bool, error) {
	status, err := g.load()
	if err != nil {
		return false, err
	}
	switch caller {
	case status.Guard1:
		status.Decision1 = decision
	case status.Guard2:
		status.Decision2 = decision
	default:
		return false, ErrNotAGuard
	}
	if err := g.store.KVPut(g.key, status); err != nil {
		return false, err
	}
	combined := status.Combined()
	g.emitter.Emit(events.Wrap(decisionEvent(g.module, caller, decision, combined)))
	return combined, nil
}

// Consume spends a unanimous approval for operation. Both decisions are
// cleared so the next gated operation needs fresh approval.
func (g *Gate) Consume(operation string) error {
	status, err := g.load()
	if err != nil {
		return err
	}
	if !status.Combined() {
		return ErrNotApproved
	}
	status.Decision1 = false
	status.Decision2 = false
	if err := g.store.KVPut(g.key, status); err != nil {
		return err
	}
	g.emitter.Emit(events.Wrap(consumedEvent(g.module, operation)))
	return nil
}
