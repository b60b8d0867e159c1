package crypto

import (
	"bytes"
	"errors"

	"github.com/ethereum/go-ethereum/crypto"
)

// WhitelistLeaf derives the membership leaf for an account. The leaf binds the
// account identity only.
func WhitelistLeaf(account [20]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(account[:]))
	return out
}

func hashPair(a, b [32]byte) [32]byte {
	var out [32]byte
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	copy(out[:], crypto.Keccak256(a[:], b[:]))
	return out
}

// VerifyMerkleProof walks the sibling path bottom-up from leaf, hashing each
// pair in sorted order, and compares the result with root.
func VerifyMerkleProof(root [32]byte, leaf [32]byte, proof [][32]byte) bool {
	computed := leaf
	for _, sibling := range proof {
		computed = hashPair(computed, sibling)
	}
	return computed == root
}

// MerkleTree is a sorted-pair keccak tree over whitelist leaves. It is used by
// operators to publish a commitment and hand out proofs.
type MerkleTree struct {
	layers [][][32]byte
}

// NewWhitelistTree builds a tree over the supplied accounts in order.
func NewWhitelistTree(accounts [][20]byte) (*MerkleTree, error) {
	if len(accounts) == 0 {
		return nil, errors.New("crypto: whitelist requires at least one account")
	}
	leaves := make([][32]byte, len(accounts))
	for i, acc := range accounts {
		leaves[i] = WhitelistLeaf(acc)
	}
	layers := [][][32]byte{leaves}
	for current := leaves; len(current) > 1; {
		next := make([][32]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 == len(current) {
				next = append(next, current[i])
				continue
			}
			next = append(next, hashPair(current[i], current[i+1]))
		}
		layers = append(layers, next)
		current = next
	}
	return &MerkleTree{layers: layers}, nil
}

// Root returns the tree commitment.
func (t *MerkleTree) Root() [32]byte {
	top := t.layers[len(t.layers)-1]
	return top[0]
}

// Proof returns the sibling path for the leaf at index.
func (t *MerkleTree) Proof(index int) ([][32]byte, error) {
	if index < 0 || index >= len(t.layers[0]) {
		return nil, errors.New("crypto: leaf index out of range")
	}
	var proof [][32]byte
	for _, layer := range t.layers[:len(t.layers)-1] {
		sibling := index ^ 1
		if sibling < len(layer) {
			proof = append(proof, layer[sibling])
		}
		index /= 2
	}
	return proof, nil
}
