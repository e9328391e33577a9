// Package submitter forwards committed VAAs to a destination chain.
package submitter

import "context"

type VAASubmitter interface {
	// SubmitVAA delivers vaaBytes to the destination and returns the transaction hash.
	SubmitVAA(ctx context.Context, vaaBytes []byte) (string, error)
}
