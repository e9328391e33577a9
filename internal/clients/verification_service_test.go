package clients_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/api"
	"github.com/wormhole-demo/attestor/internal/clients"
	"github.com/wormhole-demo/attestor/internal/core"
	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/testutil"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

func TestVerificationServiceClient(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	keys := testutil.GuardianKeys(4)
	c, err := core.New(ctx, zap.NewNop(), kvstore.NewMemStore(), core.Config{
		ChainID:            2,
		InitialGuardianSet: &guardianset.GuardianSet{Keys: testutil.Addresses(keys)},
		Clock:              core.ClockFunc(func() uint32 { return 1_700_000_500 }),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(zap.NewNop(), c).Handler())
	defer srv.Close()
	client := clients.NewVerificationServiceClient(zap.NewNop(), srv.URL+"/")

	require.NoError(t, client.CheckHealth(ctx))

	v := testutil.NewVAA(0, 2, testutil.Emitter, 11, []byte("remote"))
	testutil.SignVAA(v, keys, 0, 1, 2)
	raw := testutil.MustMarshal(v)

	res, err := client.VerifyVAA(ctx, raw)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, v.MessageID().String(), res.MessageID)

	weak := testutil.NewVAA(0, 2, testutil.Emitter, 11, []byte("remote"))
	testutil.SignVAA(weak, keys, 0)
	res, err = client.VerifyVAA(ctx, testutil.MustMarshal(weak))
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, coreerrors.ErrInsufficientSignatures.ABCICode(), res.Code)

	_, found, err := client.Committed(ctx, v.MessageID())
	require.NoError(t, err)
	require.False(t, found)

	sub, err := client.SubmitVAA(ctx, raw)
	require.NoError(t, err)
	require.False(t, sub.Replayed)

	committed, found, err := client.Committed(ctx, v.MessageID())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, sub.Digest, committed.Digest)

	conflict := testutil.NewVAA(0, 2, testutil.Emitter, 11, []byte("other"))
	testutil.SignVAA(conflict, keys, 0, 1, 2)
	_, err = client.SubmitVAA(ctx, testutil.MustMarshal(conflict))
	var apiErr *clients.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Equal(t, coreerrors.Codespace, apiErr.Codespace)
	require.Equal(t, coreerrors.ErrDigestMismatch.ABCICode(), apiErr.Code)

	_, _, err = client.Committed(ctx, vaa.MessageID{EmitterChain: 2, Sequence: 1})
	require.NoError(t, err)
}

func TestVerificationServiceClient_Unreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client := clients.NewVerificationServiceClient(zap.NewNop(), srv.URL)
	require.Error(t, client.CheckHealth(context.Background()))
}
