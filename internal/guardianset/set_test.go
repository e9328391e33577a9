package guardianset_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/attestor/internal/guardianset"
)

func TestQuorum(t *testing.T) {
	t.Parallel()

	want := map[int]int{
		1: 1, 2: 2, 3: 3, 4: 3, 5: 4, 6: 5, 7: 5, 8: 6, 9: 7, 10: 7,
		11: 8, 12: 9, 13: 9, 14: 10, 15: 11, 16: 11, 17: 12, 18: 13, 19: 13,
	}
	for n := 1; n <= 19; n++ {
		require.Equal(t, want[n], guardianset.Quorum(n), "n=%d", n)
		require.Equal(t, (n*2)/3+1, guardianset.Quorum(n))

		set := guardianset.GuardianSet{Keys: make([]common.Address, n)}
		require.Equal(t, want[n], set.Quorum())

		// Quorum is always a strict two-thirds majority.
		q := guardianset.Quorum(n)
		require.Greater(t, 3*q, 2*n)
		require.LessOrEqual(t, q, n)
	}
}

func TestIsActive(t *testing.T) {
	t.Parallel()

	never := guardianset.GuardianSet{ExpirationTime: 0}
	require.True(t, never.IsActive(0))
	require.True(t, never.IsActive(^uint32(0)))

	set := guardianset.GuardianSet{ExpirationTime: 1000}
	require.True(t, set.IsActive(999))
	require.True(t, set.IsActive(1000))
	require.False(t, set.IsActive(1001))
}

func TestIsPermanentlyInactive(t *testing.T) {
	t.Parallel()

	require.True(t, guardianset.IsPermanentlyInactive(guardianset.Mainnet, 0))
	require.False(t, guardianset.IsPermanentlyInactive(guardianset.Mainnet, 1))
	require.False(t, guardianset.IsPermanentlyInactive(guardianset.Testnet, 0))
	require.False(t, guardianset.IsPermanentlyInactive(guardianset.Devnet, 0))
}

func TestParseNetwork(t *testing.T) {
	t.Parallel()

	for _, n := range []guardianset.Network{guardianset.Devnet, guardianset.Testnet, guardianset.Mainnet} {
		got, err := guardianset.ParseNetwork(n.String())
		require.NoError(t, err)
		require.Equal(t, n, got)
	}

	got, err := guardianset.ParseNetwork("MAINNET")
	require.NoError(t, err)
	require.Equal(t, guardianset.Mainnet, got)

	_, err = guardianset.ParseNetwork("moonnet")
	require.Error(t, err)
}
