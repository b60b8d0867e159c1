package config

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"questchain/crypto"
	"questchain/native/bank"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Runtime holds the parsed values the node wires into the engines.
type Runtime struct {
	ChainID          *big.Int
	NFTContract      [20]byte
	CampaignContract [20]byte
	Guard1           [20]byte
	Guard2           [20]byte
	BackendAuthority [20]byte
	CreationFee      *big.Int
	Allocations      []RuntimeAllocation
}

// RuntimeAllocation is a parsed first-boot balance.
type RuntimeAllocation struct {
	Account [20]byte
	Asset   string
	Amount  *big.Int
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func optionalAccount(field, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return addr, invalid("%s: %v", field, err)
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, invalid("%s: %q is not a non-negative integer", field, value)
	}
	return amount, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	_, err := c.Runtime()
	return err
}

// Runtime parses addresses and amounts.
func (c *Config) Runtime() (*Runtime, error) {
	if c.ChainID == 0 {
		return nil, invalid("ChainID must be positive")
	}
	rt := &Runtime{ChainID: new(big.Int).SetUint64(c.ChainID)}
	var err error
	if rt.NFTContract, err = optionalAccount("contracts.NFT", c.Contracts.NFT); err != nil {
		return nil, err
	}
	if rt.CampaignContract, err = optionalAccount("contracts.Campaign", c.Contracts.Campaign); err != nil {
		return nil, err
	}
	if rt.NFTContract == ([20]byte{}) || rt.CampaignContract == ([20]byte{}) {
		return nil, invalid("contract accounts are required")
	}
	if rt.NFTContract == rt.CampaignContract {
		return nil, invalid("contract accounts must differ")
	}
	if rt.Guard1, err = optionalAccount("governance.Guard1", c.Governance.Guard1); err != nil {
		return nil, err
	}
	if rt.Guard2, err = optionalAccount("governance.Guard2", c.Governance.Guard2); err != nil {
		return nil, err
	}
	if rt.Guard1 != ([20]byte{}) && rt.Guard1 == rt.Guard2 {
		return nil, invalid("governance guards must differ")
	}
	if rt.BackendAuthority, err = optionalAccount("governance.BackendAuthority", c.Governance.BackendAuthority); err != nil {
		return nil, err
	}
	if rt.CreationFee, err = parseAmount("governance.CreationFee", c.Governance.CreationFee); err != nil {
		return nil, err
	}
	for i, alloc := range c.Allocations {
		account, err := crypto.ParseAccount(alloc.Account)
		if err != nil {
			return nil, invalid("allocations[%d].Account: %v", i, err)
		}
		asset, err := bank.NormalizeAsset(alloc.Asset)
		if err != nil {
			return nil, invalid("allocations[%d].Asset: %v", i, err)
		}
		amount, err := parseAmount(fmt.Sprintf("allocations[%d].Amount", i), alloc.Amount)
		if err != nil {
			return nil, err
		}
		rt.Allocations = append(rt.Allocations, RuntimeAllocation{Account: account, Asset: asset, Amount: amount})
	}
	return rt, nil
}

// GuardsConfigured reports whether both guards are set.
func (r *Runtime) GuardsConfigured() bool {
	return r != nil && r.Guard1 != ([20]byte{}) && r.Guard2 != ([20]byte{})
}
