package cmd

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/attestor/internal/testutil"
)

func TestReadVAAArg(t *testing.T) {
	t.Parallel()

	raw := testutil.MustMarshal(testutil.NewVAA(0, 2, testutil.Emitter, 1, []byte("x")))
	dir := t.TempDir()
	binPath := filepath.Join(dir, "vaa.bin")
	require.NoError(t, os.WriteFile(binPath, raw, 0o600))
	hexPath := filepath.Join(dir, "vaa.hex")
	require.NoError(t, os.WriteFile(hexPath, []byte(hex.EncodeToString(raw)+"\n"), 0o600))

	for name, arg := range map[string]string{
		"hex":         hex.EncodeToString(raw),
		"0x hex":      "0x" + hex.EncodeToString(raw),
		"base64":      base64.StdEncoding.EncodeToString(raw),
		"binary file": "@" + binPath,
		"hex file":    "@" + hexPath,
	} {
		got, err := readVAAArg(arg, nil)
		require.NoError(t, err, name)
		require.Equal(t, raw, got, name)
	}

	got, err := readVAAArg("-", strings.NewReader(hex.EncodeToString(raw)))
	require.NoError(t, err)
	require.Equal(t, raw, got)

	_, err = readVAAArg("not a vaa!", nil)
	require.Error(t, err)
	_, err = readVAAArg("@"+filepath.Join(dir, "missing"), nil)
	require.Error(t, err)
}

func TestInspectCommand(t *testing.T) {
	raw := testutil.MustMarshal(testutil.NewVAA(0, 2, testutil.Emitter, 12, []byte{0xbe, 0xef}))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"inspect", hex.EncodeToString(raw)})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, rootCmd.Execute())

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Equal(t, "beef", got["payload"])
	require.EqualValues(t, 12, got["sequence"])
}
