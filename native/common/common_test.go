package common

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	"questchain/core/events"
	"questchain/core/types"
)

type journalStore struct {
	data    map[string][]byte
	history []map[string][]byte
}

func newJournalStore() *journalStore {
	return &journalStore{data: make(map[string][]byte)}
}

func (s *journalStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.data[string(key)] = encoded
	return nil
}

func (s *journalStore) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := s.data[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(encoded, out)
}

func (s *journalStore) Snapshot() int {
	copyOf := make(map[string][]byte, len(s.data))
	for k, v := range s.data {
		copyOf[k] = v
	}
	s.history = append(s.history, copyOf)
	return len(s.history) - 1
}

func (s *journalStore) RevertToSnapshot(id int) {
	s.data = s.history[id]
	s.history = s.history[:id]
}

func testEvent(kind string) events.Event {
	return events.Wrap(&types.Event{Type: kind})
}

func TestExecutorRevertsAndDropsEventsOnError(t *testing.T) {
	store := newJournalStore()
	exec := NewExecutor(store)
	rec := &events.Recorder{}
	exec.SetEmitter(rec)

	boom := errors.New("boom")
	err := exec.Run(func() error {
		if err := store.KVPut([]byte("k"), uint64(1)); err != nil {
			return err
		}
		exec.Emit(testEvent("staged"))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ok, _ := store.KVGet([]byte("k"), nil); ok {
		t.Fatalf("write survived failed call")
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("events leaked from failed call")
	}

	if err := exec.Run(func() error {
		exec.Emit(testEvent("committed"))
		return store.KVPut([]byte("k"), uint64(2))
	}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(rec.OfType("committed")) != 1 {
		t.Fatalf("expected committed event")
	}
}

func TestExecutorRejectsReentry(t *testing.T) {
	exec := NewExecutor(newJournalStore())
	var nested error
	if err := exec.Run(func() error {
		nested = exec.Run(func() error { return nil })
		return nil
	}); err != nil {
		t.Fatalf("outer run: %v", err)
	}
	if !errors.Is(nested, ErrReentrant) {
		t.Fatalf("expected ErrReentrant, got %v", nested)
	}
	if exec.Entered() {
		t.Fatalf("lock not released")
	}
}

func TestExecutorRevertsOnPanic(t *testing.T) {
	store := newJournalStore()
	exec := NewExecutor(store)
	func() {
		defer func() { _ = recover() }()
		_ = exec.Run(func() error {
			_ = store.KVPut([]byte("p"), uint64(1))
			panic("unexpected")
		})
	}()
	if ok, _ := store.KVGet([]byte("p"), nil); ok {
		t.Fatalf("panicking call left state behind")
	}
	if exec.Entered() {
		t.Fatalf("lock not released after panic")
	}
}

func TestPauseGuard(t *testing.T) {
	reg := NewPauseRegistry(newJournalStore())
	if err := Guard(reg, "nft"); err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}
	if err := reg.SetPaused("NFT", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := Guard(reg, "nft"); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected ErrPaused, got %v", err)
	}
	if err := Guard(reg, "campaign"); err != nil {
		t.Fatalf("pause leaked across modules: %v", err)
	}
}

func TestOwnership(t *testing.T) {
	own := NewOwnership(newJournalStore(), "nft")
	owner := [20]byte{1}
	if err := own.Require(owner); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("unset owner should reject: %v", err)
	}
	if err := own.Set([20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected zero address rejection, got %v", err)
	}
	if err := own.Set(owner); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := own.Require(owner); err != nil {
		t.Fatalf("owner rejected: %v", err)
	}
	if err := own.Require([20]byte{2}); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
}
