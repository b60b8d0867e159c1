package common

import (
	"errors"
	"fmt"

	"questchain/core/events"
)

var (
	ErrReentrant      = errors.New("reentrant call")
	ErrTransferFailed = errors.New("value transfer failed")
	ErrNilState       = errors.New("state not configured")
	// ErrNoFundsToWithdraw is returned when a withdrawal finds a zero balance.
	ErrNoFundsToWithdraw = errors.New("no funds to withdraw")
)

// Journal is implemented by stores that can roll back writes.
type Journal interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// Store combines key/value access with journaling.
type Store interface {
	KV
	Journal
}

// Executor runs contract entry points with whole-call atomicity. A call holds
// the reentrancy lock for its duration, and events raised during the call are
// released only when the call succeeds.
type Executor struct {
	journal Journal
	emitter events.Emitter
	entered bool
	pending []events.Event
}

// NewExecutor creates an executor over the supplied journal.
func NewExecutor(journal Journal) *Executor {
	return &Executor{journal: journal, emitter: events.NoopEmitter{}}
}

// SetJournal swaps the journal used for snapshots.
func (x *Executor) SetJournal(journal Journal) { x.journal = journal }

// SetEmitter configures where events go after a successful call.
func (x *Executor) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		x.emitter = events.NoopEmitter{}
		return
	}
	x.emitter = emitter
}

// Emit buffers the event while a call is running and forwards it directly
// otherwise.
func (x *Executor) Emit(evt events.Event) {
	if x == nil || evt == nil {
		return
	}
	if x.entered {
		x.pending = append(x.pending, evt)
		return
	}
	x.emitter.Emit(evt)
}

// Entered reports whether a call is in progress.
func (x *Executor) Entered() bool { return x != nil && x.entered }

// Run executes fn atomically. Nested calls fail with ErrReentrant without
// touching state. A panic inside fn reverts the call before propagating.
func (x *Executor) Run(fn func() error) error {
	if x == nil || x.journal == nil {
		return ErrNilState
	}
	if x.entered {
		return ErrReentrant
	}
	if err := x.run(fn); err != nil {
		return err
	}
	pending := x.pending
	x.pending = nil
	for _, evt := range pending {
		x.emitter.Emit(evt)
	}
	return nil
}

func (x *Executor) run(fn func() error) (err error) {
	x.entered = true
	snap := x.journal.Snapshot()
	done := false
	defer func() {
		x.entered = false
		if !done {
			x.journal.RevertToSnapshot(snap)
			x.pending = nil
		}
	}()
	if err := fn(); err != nil {
		return err
	}
	done = true
	return nil
}

// WrapTransfer tags a failed payout with ErrTransferFailed.
func WrapTransfer(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}
