// Package sigverify checks guardian signatures over VAA digests.
package sigverify

import (
	"fmt"

	decredecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

// Recoverer recovers the signer address of a recoverable secp256k1 signature.
// Failures wrap coreerrors.ErrSignatureRecoveryFailed.
type Recoverer interface {
	RecoverAddress(digest [32]byte, sig vaa.Signature) (common.Address, error)
}

// recoveryID accepts both the raw 0/1 form and the Ethereum 27/28 form.
func recoveryID(v uint8) (uint8, error) {
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return 0, fmt.Errorf("%w: invalid recovery id %d", coreerrors.ErrSignatureRecoveryFailed, v)
	}
	return v, nil
}

// EthereumRecoverer recovers with go-ethereum's secp256k1 bindings.
type EthereumRecoverer struct{}

func (EthereumRecoverer) RecoverAddress(digest [32]byte, sig vaa.Signature) (common.Address, error) {
	v, err := recoveryID(sig.V)
	if err != nil {
		return common.Address{}, err
	}
	rsv := sig.RSV()
	rsv[64] = v

	pub, err := crypto.SigToPub(digest[:], rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", coreerrors.ErrSignatureRecoveryFailed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// DecredRecoverer recovers with the pure Go decred secp256k1 implementation.
type DecredRecoverer struct{}

func (DecredRecoverer) RecoverAddress(digest [32]byte, sig vaa.Signature) (common.Address, error) {
	v, err := recoveryID(sig.V)
	if err != nil {
		return common.Address{}, err
	}

	// Compact form is [27 + recid] || r || s for an uncompressed key.
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:33], sig.R[:])
	copy(compact[33:], sig.S[:])

	pub, _, err := decredecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", coreerrors.ErrSignatureRecoveryFailed, err)
	}
	// Address is the low 20 bytes of keccak256(X || Y).
	return common.BytesToAddress(crypto.Keccak256(pub.SerializeUncompressed()[1:])[12:]), nil
}
