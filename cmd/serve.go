package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wormhole-demo/attestor/internal/api"
	"github.com/wormhole-demo/attestor/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the attestation HTTP API",
	Long: `Opens the configured store and exposes VAA verification, submission,
observation aggregation and state queries over HTTP.`,
	PreRun: func(cmd *cobra.Command, args []string) {
		printBanner()
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen-addr", ":8080", "HTTP listen address")
	bindFlags(serveCmd.Flags(), "listen-addr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := configureLogging(cmd)
	defer logger.Sync()

	debug, _ := cmd.Flags().GetBool("debug")
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, _, closeStore, err := openCore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	addr := viper.GetString(config.KeyListenAddr)
	logger.Info("Starting attestor API", zap.String("addr", addr))
	return api.NewServer(logger, c).Run(ctx, addr)
}
