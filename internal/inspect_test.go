package internal

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/attestor/internal/governance"
	"github.com/wormhole-demo/attestor/internal/testutil"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

func TestInspect(t *testing.T) {
	t.Parallel()

	keys := testutil.GuardianKeys(2)
	v := testutil.NewVAA(0, 2, testutil.Emitter, 7, []byte{0xca, 0xfe})
	testutil.SignVAA(v, keys, 0, 1)
	raw := testutil.MustMarshal(v)

	got, err := Inspect(raw)
	require.NoError(t, err)
	require.Equal(t, uint8(1), got.Version)
	require.Len(t, got.Signatures, 2)
	require.Len(t, got.Signatures[1].Signature, 130)
	require.Equal(t, "ethereum", got.EmitterChainName)
	require.Equal(t, "cafe", got.Payload)
	require.Equal(t, v.MessageID().String(), got.MessageID)
	require.Nil(t, got.Governance)

	digest, err := v.Digest()
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(digest[:]), got.Digest)

	_, err = Inspect(raw[:10])
	require.Error(t, err)
}

func TestInspect_Governance(t *testing.T) {
	t.Parallel()

	p, err := governance.NewPacket(governance.ModuleCore, 0, &governance.SetMessageFee{Fee: [32]byte{31: 1}})
	require.NoError(t, err)
	payload, err := p.Marshal()
	require.NoError(t, err)

	got, err := Inspect(testutil.MustMarshal(testutil.NewVAA(0, vaa.GovernanceChain, vaa.GovernanceEmitter, 1, payload)))
	require.NoError(t, err)
	require.Equal(t, &InspectedGovernance{Module: "Core", Action: "SetMessageFee"}, got.Governance)

	bad := append(payload[:32:32], 99, 0, 0)
	got, err = Inspect(testutil.MustMarshal(testutil.NewVAA(0, vaa.GovernanceChain, vaa.GovernanceEmitter, 2, bad)))
	require.NoError(t, err)
	require.Equal(t, "Core", got.Governance.Module)
	require.Equal(t, "99", got.Governance.Action)
	require.NotEmpty(t, got.Governance.Error)
}
