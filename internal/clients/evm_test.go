package clients_test

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/clients"
)

func TestRelayABI(t *testing.T) {
	t.Parallel()

	parsed, err := clients.RelayABI(clients.DefaultRelayMethod)
	require.NoError(t, err)

	m, ok := parsed.Methods[clients.DefaultRelayMethod]
	require.True(t, ok)
	require.Equal(t, crypto.Keccak256([]byte("receiveMessage(bytes)"))[:4], m.ID)

	data, err := parsed.Pack(clients.DefaultRelayMethod, []byte{1, 2, 3})
	require.NoError(t, err)
	// selector | offset | length | padded bytes
	require.Len(t, data, 4+32+32+32)

	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, args[0])
}

func TestNewEVMClient(t *testing.T) {
	t.Parallel()

	_, err := clients.NewEVMClient(zap.NewNop(), "http://127.0.0.1:1", "0xnothex", "")
	require.ErrorContains(t, err, "invalid private key")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	c, err := clients.NewEVMClient(zap.NewNop(), "http://127.0.0.1:1", hexKey, "relay")
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), c.GetAddress())
}
