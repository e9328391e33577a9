// Package testutil holds deterministic guardian keys and VAA builders for tests.
package testutil

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/wormhole-demo/attestor/internal/vaa"
)

// GuardianKeys returns n deterministic secp256k1 keys. Key i is derived from
// the seed string "guardian-<i>", so sets built from the same n always match.
func GuardianKeys(n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		k, err := crypto.ToECDSA(crypto.Keccak256([]byte(fmt.Sprintf("guardian-%d", i))))
		if err != nil {
			panic(fmt.Errorf("BUG: deriving guardian key %d: %w", i, err))
		}
		keys[i] = k
	}
	return keys
}

// Addresses returns the guardian addresses of keys, in order.
func Addresses(keys []*ecdsa.PrivateKey) []common.Address {
	out := make([]common.Address, len(keys))
	for i, k := range keys {
		out[i] = crypto.PubkeyToAddress(k.PublicKey)
	}
	return out
}

// Sign signs digest with key as guardian index.
func Sign(digest [32]byte, index uint8, key *ecdsa.PrivateKey) vaa.Signature {
	rsv, err := crypto.Sign(digest[:], key)
	if err != nil {
		panic(fmt.Errorf("BUG: signing digest: %w", err))
	}
	sig, err := vaa.SignatureFromRSV(index, rsv)
	if err != nil {
		panic(err)
	}
	return sig
}

// SignVAA replaces v's signatures with signatures from the guardians at indices,
// in the order given.
func SignVAA(v *vaa.VAA, keys []*ecdsa.PrivateKey, indices ...int) {
	digest, err := v.Digest()
	if err != nil {
		panic(fmt.Errorf("BUG: digest: %w", err))
	}
	v.Signatures = make([]vaa.Signature, 0, len(indices))
	for _, i := range indices {
		v.Signatures = append(v.Signatures, Sign(digest, uint8(i), keys[i]))
	}
}

// FirstN returns the indices 0..n-1.
func FirstN(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Emitter is an arbitrary non-governance emitter address used across tests.
var Emitter = vaa.Address{0: 0xee, 31: 0x01}

// NewVAA builds an unsigned version 1 VAA.
func NewVAA(setIndex uint32, chain vaa.ChainID, emitter vaa.Address, sequence uint64, payload []byte) *vaa.VAA {
	return &vaa.VAA{
		Header: vaa.Header{
			Version:          vaa.SupportedVersion,
			GuardianSetIndex: setIndex,
		},
		Body: vaa.Body{
			BodyHeader: vaa.BodyHeader{
				Timestamp:        1_700_000_000,
				Nonce:            42,
				EmitterChain:     chain,
				EmitterAddress:   emitter,
				Sequence:         sequence,
				ConsistencyLevel: 15,
			},
			Payload: payload,
		},
	}
}

// MustMarshal serializes v or panics.
func MustMarshal(v *vaa.VAA) []byte {
	b, err := v.Marshal()
	if err != nil {
		panic(fmt.Errorf("BUG: marshal VAA: %w", err))
	}
	return b
}
