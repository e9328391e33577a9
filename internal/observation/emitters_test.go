package observation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

func TestEmitterRegistry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := observation.NewEmitterRegistry(zap.NewNop(), kvstore.NewMemStore())
	eth := vaa.Address{12: 0xab, 31: 0xcd}

	_, ok, err := r.Lookup(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)
	require.ErrorIs(t, r.Check(ctx, 2, eth), coreerrors.ErrUnregisteredChain)

	require.NoError(t, r.Register(ctx, 2, eth))
	got, ok, err := r.Lookup(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, eth, got)

	require.NoError(t, r.Check(ctx, 2, eth))
	require.ErrorIs(t, r.Check(ctx, 2, vaa.Address{1}), coreerrors.ErrUnknownEmitter)

	// Re-registering the same emitter is fine, replacing it is not.
	require.NoError(t, r.Register(ctx, 2, eth))
	require.ErrorIs(t, r.Register(ctx, 2, vaa.Address{1}), coreerrors.ErrChainAlreadyRegistered)

	// Governance is always trusted.
	require.NoError(t, r.Check(ctx, vaa.GovernanceChain, vaa.GovernanceEmitter))
}
