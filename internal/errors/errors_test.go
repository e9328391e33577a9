package errors_test

import (
	"errors"
	"fmt"
	"testing"

	errorsmod "cosmossdk.io/errors"
	"github.com/stretchr/testify/require"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/wire"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	wrapped := errorsmod.Wrapf(coreerrors.ErrDigestMismatch, "key %s", "1/00/5")
	require.Equal(t, coreerrors.ErrDigestMismatch, coreerrors.KindOf(wrapped))

	doubly := fmt.Errorf("submit: %w", wrapped)
	require.Equal(t, coreerrors.ErrDigestMismatch, coreerrors.KindOf(doubly))

	require.Nil(t, coreerrors.KindOf(errors.New("disk full")))
	require.Nil(t, coreerrors.KindOf(nil))
}

func TestWireDataKeepsBothKinds(t *testing.T) {
	t.Parallel()

	err := coreerrors.WireData(wire.ErrTrailingData, "decode body")
	require.ErrorIs(t, err, coreerrors.ErrInvalidWireData)
	require.ErrorIs(t, err, wire.ErrTrailingData)
	require.Equal(t, coreerrors.ErrInvalidWireData, coreerrors.KindOf(err))
}

func TestKindsAreDistinct(t *testing.T) {
	t.Parallel()

	require.False(t, errors.Is(coreerrors.ErrDigestMismatch, coreerrors.ErrAlreadyCommitted))
	require.Equal(t, uint32(11), coreerrors.ErrDigestMismatch.ABCICode())
	require.Equal(t, coreerrors.Codespace, coreerrors.ErrDigestMismatch.Codespace())
}
