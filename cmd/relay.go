package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wormhole-demo/attestor/internal"
	"github.com/wormhole-demo/attestor/internal/api"
	"github.com/wormhole-demo/attestor/internal/clients"
	"github.com/wormhole-demo/attestor/internal/submitter"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Attest VAAs from a guardian spy and forward them to an EVM chain",
	Long: `Listens for signed VAAs on a Wormhole spy, verifies them against the
guardian sets and commits them with replay protection. Governance VAAs are
executed.

When --evm-rpc-url and --evm-target-contract are set, every newly committed
VAA is forwarded to the target contract. With --serve-api the HTTP API runs
alongside the relayer on the same state.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		printBanner()
	},
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)

	flags := relayCmd.Flags()
	flags.String("spy-rpc-host", "localhost:7073", "Wormhole spy service endpoint")
	flags.StringSlice("source-chains", nil, "Emitter chains to attest, by name or number (default all)")
	flags.String("emitter-address", "", "Emitter address to attest (hex, default all)")
	flags.String("evm-rpc-url", "", "RPC URL of the EVM chain to forward to")
	flags.String("private-key", "", "Private key for EVM transactions")
	flags.String("evm-target-contract", "", "Contract receiving forwarded VAAs")
	flags.String("evm-method", "receiveMessage", "Contract function taking the VAA bytes")
	flags.Bool("serve-api", false, "Also serve the HTTP API")
	flags.String("listen-addr", ":8080", "HTTP listen address with --serve-api")

	bindFlags(flags,
		"spy-rpc-host", "source-chains", "emitter-address",
		"evm-rpc-url", "private-key", "evm-target-contract", "evm-method",
	)
}

func runRelay(cmd *cobra.Command, _ []string) error {
	logger := configureLogging(cmd)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, cfg, closeStore, err := openCore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	logger.Info("Configuration",
		zap.String("spyRPC", cfg.SpyRPCHost),
		zap.Any("sourceChains", cfg.SourceChains),
		zap.String("emitterFilter", cfg.EmitterAddress),
		zap.Bool("forwarding", cfg.EVM.Enabled()),
		zap.String("evmTarget", cfg.EVM.TargetContract))

	var sub submitter.VAASubmitter
	if cfg.EVM.Enabled() {
		if cfg.EVM.PrivateKey == "" {
			return fmt.Errorf("private key is required for EVM forwarding")
		}
		evmClient, err := clients.NewEVMClient(logger, cfg.EVM.RPCURL, cfg.EVM.PrivateKey, cfg.EVM.Method)
		if err != nil {
			return fmt.Errorf("failed to create EVM client: %w", err)
		}
		defer evmClient.Close()
		logger.Info("Connected to EVM", zap.String("address", evmClient.GetAddress().Hex()))
		sub = submitter.NewEVMSubmitter(logger, cfg.EVM.TargetContract, evmClient)
	}

	processor, err := internal.NewDefaultVAAProcessor(logger, internal.VAAProcessorConfig{
		SourceChains:   cfg.SourceChains,
		EmitterAddress: cfg.EmitterAddress,
	}, c, sub)
	if err != nil {
		return err
	}

	spyClient, err := clients.NewSpyClient(logger, cfg.SpyRPCHost)
	if err != nil {
		return fmt.Errorf("failed to create spy client: %w", err)
	}
	relayer := internal.NewRelayer(logger, spyClient, processor)
	defer relayer.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := relayer.Start(gctx); err != nil {
			return fmt.Errorf("relayer stopped with error: %w", err)
		}
		return nil
	})
	if serveAPI, _ := cmd.Flags().GetBool("serve-api"); serveAPI {
		addr, _ := cmd.Flags().GetString("listen-addr")
		if debug, _ := cmd.Flags().GetBool("debug"); !debug {
			gin.SetMode(gin.ReleaseMode)
		}
		g.Go(func() error {
			return api.NewServer(logger, c).Run(gctx, addr)
		})
	}
	return g.Wait()
}
