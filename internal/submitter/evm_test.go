package submitter

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRelayer struct {
	target string
	sent   []byte
	err    error
}

func (f *fakeRelayer) RelayVAA(_ context.Context, target string, vaaBytes []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.target = target
	f.sent = vaaBytes
	return "0xabc", nil
}

func (f *fakeRelayer) GetAddress() common.Address {
	return common.Address{19: 1}
}

func TestEVMSubmitterInterface(t *testing.T) {
	var _ VAASubmitter = (*EVMSubmitter)(nil)
}

func TestEVMSubmitter(t *testing.T) {
	t.Parallel()

	const target = "0x1234567890123456789012345678901234567890"
	r := &fakeRelayer{}
	s := NewEVMSubmitter(zap.NewNop(), target, r)

	hash, err := s.SubmitVAA(context.Background(), []byte{1, 2})
	require.NoError(t, err)
	require.Equal(t, "0xabc", hash)
	require.Equal(t, target, r.target)
	require.Equal(t, []byte{1, 2}, r.sent)

	boom := errors.New("nonce too low")
	s = NewEVMSubmitter(zap.NewNop(), target, &fakeRelayer{err: boom})
	_, err = s.SubmitVAA(context.Background(), []byte{1})
	require.ErrorIs(t, err, boom)
}
