package common

import (
	"errors"
	"strings"
)

var (
	ErrNotOwner    = errors.New("caller is not the owner")
	ErrZeroAddress = errors.New("zero address")
)

// Ownership persists the administrator identity of a module.
type Ownership struct {
	store KV
	key   []byte
}

// NewOwnership binds the owner record for module to store.
func NewOwnership(store KV, module string) *Ownership {
	return &Ownership{store: store, key: []byte("owner/" + strings.ToLower(strings.TrimSpace(module)))}
}

// IsZero reports whether addr is the null identity.
func IsZero(addr [20]byte) bool {
	var zero [20]byte
	return addr == zero
}

// Owner returns the current owner; the zero address when unset.
func (o *Ownership) Owner() ([20]byte, error) {
	var owner [20]byte
	if o == nil || o.store == nil {
		return owner, ErrNilState
	}
	if _, err := o.store.KVGet(o.key, &owner); err != nil {
		return owner, err
	}
	return owner, nil
}

// Set records owner unconditionally.
func (o *Ownership) Set(owner [20]byte) error {
	if o == nil || o.store == nil {
		return ErrNilState
	}
	if IsZero(owner) {
		return ErrZeroAddress
	}
	return o.store.KVPut(o.key, owner)
}

// Require fails with ErrNotOwner unless caller is the owner.
func (o *Ownership) Require(caller [20]byte) error {
	owner, err := o.Owner()
	if err != nil {
		return err
	}
	if IsZero(owner) || owner != caller {
		return ErrNotOwner
	}
	return nil
}
