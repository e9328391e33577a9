package observation_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

func TestStatusEncoding(t *testing.T) {
	t.Parallel()

	raw, err := observation.EncodeStatus(observation.StatusPending{Signatures: 12, Quorum: 13})
	require.NoError(t, err)
	require.Equal(t, []byte{0, 12, 13}, raw)

	committed := observation.StatusCommitted{
		ID:     vaa.MessageID{EmitterChain: 2, Sequence: 1},
		Digest: [32]byte{31: 1},
		Body:   &vaa.Body{Payload: []byte("dropped")},
	}
	raw, err = observation.EncodeStatus(committed)
	require.NoError(t, err)
	require.Equal(t, byte(1), raw[0])
	require.Len(t, raw, 1+42+32)

	got, err := observation.DecodeStatus(raw)
	require.NoError(t, err)
	committed.Body = nil
	require.Equal(t, committed, got)

	raw, err = observation.EncodeStatus(observation.StatusError{Detail: "nope"})
	require.NoError(t, err)
	require.Equal(t, []byte{2, 4, 'n', 'o', 'p', 'e'}, raw)

	_, err = observation.DecodeStatus([]byte{3})
	require.Error(t, err)
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	st := observation.ErrorStatus(errors.New(strings.Repeat("é", 200)))
	require.LessOrEqual(t, len(st.Detail), 255)
	require.True(t, utf8.ValidString(st.Detail))

	_, err := observation.EncodeStatus(st)
	require.NoError(t, err)
}
