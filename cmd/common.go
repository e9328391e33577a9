package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/config"
	"github.com/wormhole-demo/attestor/internal/core"
)

// openCore loads the configuration and opens the core on the configured store.
// The returned close function releases the store.
func openCore(ctx context.Context, logger *zap.Logger) (*core.Core, *config.Config, func(), error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, closeStore, err := cfg.OpenStore(ctx, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := closeStore(); err != nil {
			logger.Warn("Failed to close store", zap.Error(err))
		}
	}

	c, err := core.New(ctx, logger, store, cfg.CoreConfig())
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return c, cfg, closeFn, nil
}

// readVAAArg returns the VAA bytes named by arg: hex or base64 text, "@path"
// for a file holding text or raw bytes, or "-" for stdin.
func readVAAArg(arg string, stdin io.Reader) ([]byte, error) {
	var data []byte
	switch {
	case arg == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		data = b
	case strings.HasPrefix(arg, "@"):
		b, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, err
		}
		data = b
	default:
		data = []byte(arg)
	}

	text := strings.TrimSpace(string(data))
	if b, err := hex.DecodeString(strings.TrimPrefix(text, "0x")); err == nil && len(b) > 0 {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(text); err == nil && len(b) > 0 {
		return b, nil
	}
	// A file may hold the binary encoding.
	if strings.HasPrefix(arg, "@") && len(data) > 0 && !isPrintable(data) {
		return data, nil
	}
	return nil, errors.New("input is neither hex, base64 nor a binary VAA file")
}

func isPrintable(b []byte) bool {
	return bytes.IndexFunc(b, func(r rune) bool {
		return r < 0x20 && r != '\n' && r != '\r' && r != '\t'
	}) < 0
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
