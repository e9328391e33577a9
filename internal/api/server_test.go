package api_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/api"
	"github.com/wormhole-demo/attestor/internal/core"
	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/governance"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/testutil"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

const now uint32 = 1_700_000_500

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	handler http.Handler
	core    *core.Core
	keys    []*ecdsa.PrivateKey
}

func newEnv(t *testing.T, n int) *env {
	t.Helper()

	keys := testutil.GuardianKeys(n)
	c, err := core.New(context.Background(), zap.NewNop(), kvstore.NewMemStore(), core.Config{
		ChainID:            2,
		InitialGuardianSet: &guardianset.GuardianSet{Keys: testutil.Addresses(keys)},
		Clock:              core.ClockFunc(func() uint32 { return now }),
	})
	require.NoError(t, err)
	return &env{handler: api.NewServer(zap.NewNop(), c).Handler(), core: c, keys: keys}
}

func (e *env) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func (e *env) signedVAA(seq uint64, payload []byte, signers ...int) string {
	v := testutil.NewVAA(0, 2, testutil.Emitter, seq, payload)
	testutil.SignVAA(v, e.keys, signers...)
	return "0x" + hex.EncodeToString(testutil.MustMarshal(v))
}

func requireKind(t *testing.T, out map[string]any, kind interface{ ABCICode() uint32 }) {
	t.Helper()
	require.Equal(t, coreerrors.Codespace, out["codespace"])
	require.EqualValues(t, kind.ABCICode(), out["code"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	code, out := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", out["status"])
}

func TestVerify(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 4)

	code, out := e.do(t, http.MethodPost, "/verify", map[string]string{"vaaBytes": e.signedVAA(1, []byte("hi"), 0, 1, 2)})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["success"])
	require.Equal(t, "2/"+testutil.Emitter.String()+"/1", out["messageId"])
	require.Len(t, out["digest"], 64)

	code, out = e.do(t, http.MethodPost, "/verify", map[string]string{"vaaBytes": e.signedVAA(1, []byte("hi"), 0, 1)})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, out["success"])
	require.NotEmpty(t, out["error"])
	requireKind(t, out, coreerrors.ErrInsufficientSignatures)

	// Verification leaves nothing committed.
	code, _ = e.do(t, http.MethodGet, "/committed/2/"+testutil.Emitter.String()+"/1", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSubmitVAA(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 4)
	raw := e.signedVAA(9, []byte("payload"), 1, 2, 3)

	code, out := e.do(t, http.MethodPost, "/vaas", map[string]string{"vaaBytes": raw})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, out["replayed"])

	code, out = e.do(t, http.MethodPost, "/vaas", map[string]string{"vaaBytes": raw})
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, out["replayed"])

	code, out = e.do(t, http.MethodPost, "/vaas", map[string]string{"vaaBytes": e.signedVAA(9, []byte("other"), 0, 1, 2)})
	require.Equal(t, http.StatusConflict, code)
	requireKind(t, out, coreerrors.ErrDigestMismatch)

	code, out = e.do(t, http.MethodGet, "/committed/2/"+testutil.Emitter.String()+"/9", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, hex.EncodeToString([]byte("payload")), out["payload"])
	require.EqualValues(t, now, out["committedAt"])
	require.EqualValues(t, 42, out["nonce"])
}

func TestSubmitGovernanceVAA(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)
	emitter := vaa.Address{31: 0x77}
	p, err := governance.NewPacket(governance.ModuleTokenBridge, 0, &governance.RegisterChain{EmitterChain: 6, EmitterAddress: emitter})
	require.NoError(t, err)
	payload, err := p.Marshal()
	require.NoError(t, err)
	v := testutil.NewVAA(0, vaa.GovernanceChain, vaa.GovernanceEmitter, 1, payload)
	testutil.SignVAA(v, e.keys, 0)

	code, out := e.do(t, http.MethodPost, "/vaas", map[string]string{"vaaBytes": hex.EncodeToString(testutil.MustMarshal(v))})
	require.Equal(t, http.StatusOK, code)
	gov, ok := out["governance"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "TokenBridge", gov["module"])
	require.Equal(t, "RegisterChain", gov["action"])

	code, out = e.do(t, http.MethodGet, "/emitters/6", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, emitter.String(), out["address"])

	code, _ = e.do(t, http.MethodGet, "/emitters/7", nil)
	require.Equal(t, http.StatusNotFound, code)
}

func TestSubmitObservation(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 4)
	v := testutil.NewVAA(0, 2, testutil.Emitter, 5, []byte("observed"))
	body, err := v.Body.Marshal()
	require.NoError(t, err)
	digest := vaa.Digest(body)

	observe := func(g int) (int, map[string]any) {
		raw, err := observation.MarshalSignedObservation(&observation.SignedObservation{
			TxHash:    [32]byte{0xaa},
			Signature: testutil.Sign(digest, uint8(g), e.keys[g]),
			Body:      body,
		})
		require.NoError(t, err)
		return e.do(t, http.MethodPost, "/observations", map[string]string{"observation": hex.EncodeToString(raw)})
	}

	code, out := observe(3)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "pending", out["status"])
	require.EqualValues(t, 1, out["signatures"])
	require.EqualValues(t, 3, out["quorum"])
	require.Equal(t, "000103", out["encoded"])

	_, out = observe(1)
	require.Equal(t, "pending", out["status"])

	code, out = e.do(t, http.MethodGet, "/pending/2/"+testutil.Emitter.String()+"/5", nil)
	require.Equal(t, http.StatusOK, code)
	buckets := out["buckets"].([]any)
	require.Len(t, buckets, 1)
	bucket := buckets[0].(map[string]any)
	require.Equal(t, []any{1.0, 3.0}, bucket["signers"])
	require.Equal(t, hex.EncodeToString(digest[:]), bucket["digest"])

	_, out = observe(0)
	require.Equal(t, "committed", out["status"])
	require.Equal(t, hex.EncodeToString(digest[:]), out["digest"])

	code, out = e.do(t, http.MethodGet, "/pending/2/"+testutil.Emitter.String()+"/5", nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, out["buckets"])

	code, _ = e.do(t, http.MethodGet, "/committed/2/"+testutil.Emitter.String()+"/5", nil)
	require.Equal(t, http.StatusOK, code)
}

func TestGuardianSets(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 3)

	code, out := e.do(t, http.MethodGet, "/guardian-sets/current", nil)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 0, out["index"])
	require.EqualValues(t, 3, out["quorum"])
	require.Len(t, out["keys"], 3)
	require.EqualValues(t, 0, out["expirationTime"])

	code, _ = e.do(t, http.MethodGet, "/guardian-sets/0", nil)
	require.Equal(t, http.StatusOK, code)

	code, out = e.do(t, http.MethodGet, "/guardian-sets/7", nil)
	require.Equal(t, http.StatusNotFound, code)
	requireKind(t, out, coreerrors.ErrUnknownGuardianSet)
}

func TestBadRequests(t *testing.T) {
	t.Parallel()

	e := newEnv(t, 1)

	for _, tc := range []struct {
		method, path string
		body         any
		status       int
	}{
		{http.MethodPost, "/verify", map[string]string{}, http.StatusBadRequest},
		{http.MethodPost, "/verify", map[string]string{"vaaBytes": "0xzz"}, http.StatusBadRequest},
		{http.MethodPost, "/vaas", map[string]string{"vaaBytes": "0x02"}, http.StatusBadRequest},
		{http.MethodPost, "/observations", map[string]string{"observation": "00"}, http.StatusBadRequest},
		{http.MethodGet, "/committed/x/00/1", nil, http.StatusBadRequest},
		{http.MethodGet, "/pending/2/00/-1", nil, http.StatusBadRequest},
		{http.MethodGet, "/guardian-sets/abc", nil, http.StatusBadRequest},
		{http.MethodGet, "/nope", nil, http.StatusNotFound},
	} {
		code, out := e.do(t, tc.method, tc.path, tc.body)
		require.Equal(t, tc.status, code, "%s %s", tc.method, tc.path)
		require.NotEmpty(t, out["message"], "%s %s", tc.method, tc.path)
	}
}
