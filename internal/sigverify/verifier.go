package sigverify

import (
	"fmt"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

type Verifier struct {
	Recoverer Recoverer
}

// NewVerifier returns a Verifier using r, or the go-ethereum recoverer when r is nil.
func NewVerifier(r Recoverer) *Verifier {
	if r == nil {
		r = EthereumRecoverer{}
	}
	return &Verifier{Recoverer: r}
}

// VerifySignatures checks that sigs carry a quorum of set over digest.
// Guardian indices must be strictly increasing, and every signature must
// recover to the key at its index; none is skipped.
func (v *Verifier) VerifySignatures(digest [32]byte, sigs []vaa.Signature, set *guardianset.GuardianSet) error {
	if q := set.Quorum(); len(sigs) < q {
		return fmt.Errorf("%w: have %d, need %d of %d", coreerrors.ErrInsufficientSignatures, len(sigs), q, len(set.Keys))
	}

	last := -1
	for i, sig := range sigs {
		if int(sig.Index) <= last {
			return fmt.Errorf("%w: signature %d has guardian index %d after %d", coreerrors.ErrGuardianIndexOutOfOrder, i, sig.Index, last)
		}
		last = int(sig.Index)

		if err := v.VerifySignature(digest, sig, set); err != nil {
			return err
		}
	}
	return nil
}

// VerifySignature checks one guardian's signature over digest.
func (v *Verifier) VerifySignature(digest [32]byte, sig vaa.Signature, set *guardianset.GuardianSet) error {
	if int(sig.Index) >= len(set.Keys) {
		return fmt.Errorf("%w: index %d, guardian set %d has %d keys", coreerrors.ErrGuardianIndexOutOfRange, sig.Index, set.Index, len(set.Keys))
	}
	addr, err := v.Recoverer.RecoverAddress(digest, sig)
	if err != nil {
		return fmt.Errorf("guardian %d: %w", sig.Index, err)
	}
	if want := set.Keys[sig.Index]; addr != want {
		return fmt.Errorf("%w: guardian %d is %s, recovered %s", coreerrors.ErrGuardianSignatureMismatch, sig.Index, want, addr)
	}
	return nil
}
