package campaign

import (
	"errors"
	"fmt"
	"math/big"

	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"questchain/crypto"
)

// Authorization encoding, version 1. The backend signs the EIP-712 digest of
//
//	BatchCompletion(address account,uint256[] campaignIds,uint256 nonce)
//
// under the domain {name, version, chainId, verifyingContract}. Field order
// and types are part of the wire contract with the signing service.
const (
	DomainName    = "QuestCampaigns"
	DomainVersion = "1"

	batchPrimaryType = "BatchCompletion"
)

var errNilDomain = errors.New("campaign: authorization domain not configured")

// Domain binds authorizations to one chain and one contract account.
type Domain struct {
	ChainID  *big.Int
	Contract [20]byte
}

var authorizationTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	batchPrimaryType: {
		{Name: "account", Type: "address"},
		{Name: "campaignIds", Type: "uint256[]"},
		{Name: "nonce", Type: "uint256"},
	},
}

// TypedData builds the structured message for a batch.
func (d *Domain) TypedData(account [20]byte, campaignIDs []uint64, nonce uint64) (apitypes.TypedData, error) {
	if d == nil || d.ChainID == nil {
		return apitypes.TypedData{}, errNilDomain
	}
	ids := make([]interface{}, len(campaignIDs))
	for i, id := range campaignIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	return apitypes.TypedData{
		Types:       authorizationTypes,
		PrimaryType: batchPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(d.ChainID)),
			VerifyingContract: gethcommon.BytesToAddress(d.Contract[:]).Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"account":     gethcommon.BytesToAddress(account[:]).Hex(),
			"campaignIds": ids,
			"nonce":       new(big.Int).SetUint64(nonce),
		},
	}, nil
}

// AuthorizationHash returns the digest the backend authority signs.
func (d *Domain) AuthorizationHash(account [20]byte, campaignIDs []uint64, nonce uint64) ([32]byte, error) {
	var out [32]byte
	typed, err := d.TypedData(account, campaignIDs, nonce)
	if err != nil {
		return out, err
	}
	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return out, fmt.Errorf("campaign: hash authorization: %w", err)
	}
	copy(out[:], hash)
	return out, nil
}

// SignAuthorization signs a batch with the backend key.
func (d *Domain) SignAuthorization(key *crypto.PrivateKey, account [20]byte, campaignIDs []uint64, nonce uint64) ([]byte, error) {
	if key == nil {
		return nil, errors.New("campaign: signing key required")
	}
	hash, err := d.AuthorizationHash(account, campaignIDs, nonce)
	if err != nil {
		return nil, err
	}
	return key.Sign(hash[:])
}

// RecoverAuthority returns the identity that signed the batch.
func (d *Domain) RecoverAuthority(account [20]byte, campaignIDs []uint64, nonce uint64, sig []byte) ([20]byte, error) {
	hash, err := d.AuthorizationHash(account, campaignIDs, nonce)
	if err != nil {
		return [20]byte{}, err
	}
	return crypto.RecoverSigner(hash[:], sig)
}

// BatchDigest is the idempotency key of a batch:
// keccak256(account || uint256(id)... || uint256(nonce)).
func BatchDigest(account [20]byte, campaignIDs []uint64, nonce uint64) [32]byte {
	buf := make([]byte, 0, 20+32*(len(campaignIDs)+1))
	buf = append(buf, account[:]...)
	for _, id := range campaignIDs {
		buf = append(buf, math.U256Bytes(new(big.Int).SetUint64(id))...)
	}
	buf = append(buf, math.U256Bytes(new(big.Int).SetUint64(nonce))...)
	var out [32]byte
	copy(out[:], ethcrypto.Keccak256(buf))
	return out
}
