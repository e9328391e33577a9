// Package errors registers the error kinds returned across the attestation core.
//
// Every kind is a cosmossdk.io/errors value with a stable code in the
// attestor codespace, so callers can match with errors.Is and transports can
// report the numeric code.
package errors

import (
	stderrors "errors"
	"fmt"

	errorsmod "cosmossdk.io/errors"
)

const Codespace = "attestor"

var (
	ErrInvalidWireData             = errorsmod.Register(Codespace, 2, "invalid wire data")
	ErrUnsupportedVersion          = errorsmod.Register(Codespace, 3, "unsupported VAA version")
	ErrUnknownGuardianSet          = errorsmod.Register(Codespace, 4, "unknown guardian set")
	ErrGuardianSetExpired          = errorsmod.Register(Codespace, 5, "guardian set expired")
	ErrInsufficientSignatures      = errorsmod.Register(Codespace, 6, "insufficient signatures")
	ErrGuardianIndexOutOfOrder     = errorsmod.Register(Codespace, 7, "guardian index out of order")
	ErrSignatureRecoveryFailed     = errorsmod.Register(Codespace, 8, "signature recovery failed")
	ErrGuardianSignatureMismatch   = errorsmod.Register(Codespace, 9, "guardian signature mismatch")
	ErrGuardianIndexOutOfRange     = errorsmod.Register(Codespace, 10, "guardian index out of range")
	ErrDigestMismatch              = errorsmod.Register(Codespace, 11, "digest mismatch")
	ErrAlreadyCommitted            = errorsmod.Register(Codespace, 12, "message already committed")
	ErrUnknownEmitter              = errorsmod.Register(Codespace, 13, "unknown emitter")
	ErrUnregisteredChain           = errorsmod.Register(Codespace, 14, "unregistered chain")
	ErrInvalidGovernanceModule     = errorsmod.Register(Codespace, 15, "invalid governance module")
	ErrInvalidGovernanceChain      = errorsmod.Register(Codespace, 16, "invalid governance chain")
	ErrUnsupportedGovernanceAction = errorsmod.Register(Codespace, 17, "unsupported governance action")
	ErrGuardianSetRotationOrder    = errorsmod.Register(Codespace, 18, "guardian set rotation out of order")
	ErrInvalidGuardianSet          = errorsmod.Register(Codespace, 19, "invalid guardian set")
	ErrInsufficientBalance         = errorsmod.Register(Codespace, 20, "insufficient balance")
	ErrChainAlreadyRegistered      = errorsmod.Register(Codespace, 21, "chain already registered")
	ErrBalanceOverflow             = errorsmod.Register(Codespace, 22, "balance overflow")
	ErrTooManyPendingBuckets       = errorsmod.Register(Codespace, 23, "too many pending buckets")
)

var kinds = []*errorsmod.Error{
	ErrInvalidWireData,
	ErrUnsupportedVersion,
	ErrUnknownGuardianSet,
	ErrGuardianSetExpired,
	ErrInsufficientSignatures,
	ErrGuardianIndexOutOfOrder,
	ErrSignatureRecoveryFailed,
	ErrGuardianSignatureMismatch,
	ErrGuardianIndexOutOfRange,
	ErrDigestMismatch,
	ErrAlreadyCommitted,
	ErrUnknownEmitter,
	ErrUnregisteredChain,
	ErrInvalidGovernanceModule,
	ErrInvalidGovernanceChain,
	ErrUnsupportedGovernanceAction,
	ErrGuardianSetRotationOrder,
	ErrInvalidGuardianSet,
	ErrInsufficientBalance,
	ErrChainAlreadyRegistered,
	ErrBalanceOverflow,
	ErrTooManyPendingBuckets,
}

// KindOf returns the registered kind err belongs to, or nil if err does not
// wrap any of them (storage or transport failures, for instance).
func KindOf(err error) *errorsmod.Error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if stderrors.Is(err, k) {
			return k
		}
	}
	return nil
}

// WireData marks a codec failure as ErrInvalidWireData while keeping the
// codec's own sentinel reachable through errors.Is.
func WireData(err error, what string) error {
	return fmt.Errorf("%s: %w: %w", what, ErrInvalidWireData, err)
}
