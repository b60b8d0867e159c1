package common

import (
	"errors"
	"strings"
)

var ErrPaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects calls into a paused module.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrPaused
	}
	return nil
}

// KV is the persistence surface shared by native modules.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// PauseRegistry persists per-module pause flags.
type PauseRegistry struct {
	store KV
}

// NewPauseRegistry binds a registry to the supplied store.
func NewPauseRegistry(store KV) *PauseRegistry {
	return &PauseRegistry{store: store}
}

func pauseKey(module string) []byte {
	return []byte("pause/" + strings.ToLower(strings.TrimSpace(module)))
}

// IsPaused reports whether the module is paused. Read failures are reported as
// paused so a broken store never lets calls through.
func (p *PauseRegistry) IsPaused(module string) bool {
	if p == nil || p.store == nil {
		return false
	}
	var paused bool
	ok, err := p.store.KVGet(pauseKey(module), &paused)
	if err != nil {
		return true
	}
	return ok && paused
}

// SetPaused stores the pause flag for module.
func (p *PauseRegistry) SetPaused(module string, paused bool) error {
	if p == nil || p.store == nil {
		return errors.New("pause registry: store not configured")
	}
	return p.store.KVPut(pauseKey(module), paused)
}
