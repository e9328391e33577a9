package cmd

import (
	"fmt"
	"os"
	"strings"

	dotenv "github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wormhole-demo/attestor/internal/config"
	"github.com/wormhole-demo/attestor/internal/core"
)

var rootCmd = &cobra.Command{
	Use:          "wormhole-attestor",
	Short:        "Verifies, aggregates and commits Wormhole VAAs",
	SilenceUsage: true,
}

func init() {
	// Tentatively load .env file
	_ = dotenv.Load()

	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.Bool("debug", false, "Enables debug output.")
	flags.Bool("json", false, "Enables structured logging in JSON format.")

	flags.String("network", "devnet", "Guardian network (mainnet, testnet, devnet)")
	flags.String("chain", "3104", "Chain this attestor acts for, by name or number; governance must target it or chain 0")
	flags.Duration("guardian-set-expiry", core.DefaultGuardianSetExpiry, "How long a replaced guardian set keeps verifying")
	flags.Uint32("guardian-set-index", 0, "Index of the initial guardian set")
	flags.StringSlice("guardian-keys", nil, "Initial guardian addresses (hex, comma separated); required for an empty store")
	flags.Bool("enforce-emitters", false, "Reject messages from emitters not registered through governance")
	flags.String("recoverer", "ethereum", "secp256k1 recovery implementation (ethereum, decred)")

	flags.String("store", config.StoreMemory, "State backend (memory, sqlite, redis)")
	flags.String("sqlite-path", "attestor.sqlite", "SQLite database file")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database number")
	flags.String("redis-prefix", "attestor/", "Prefix of every Redis key")

	bindFlags(flags,
		"network", "chain", "guardian-set-expiry", "guardian-set-index", "guardian-keys",
		"enforce-emitters", "recoverer",
		"store", "sqlite-path", "redis-addr", "redis-password", "redis-db", "redis-prefix",
	)

	cobra.OnInitialize(initConfig)
}

// bindFlags binds each flag to the viper key of the same name with underscores.
func bindFlags(fs *pflag.FlagSet, names ...string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			panic(fmt.Sprintf("BUG: no flag %q", name))
		}
		if err := viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
			panic(fmt.Sprintf("BUG: bind flag %q: %v", name, err))
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("wormhole_attestor")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func printBanner() {
	colours := []string{
		"\033[38;5;81m", // Cyan
		"\033[38;5;75m", // Light Blue
		"\033[38;5;69m", // Sky Blue
		"\033[38;5;63m", // Dodger Blue
		"\033[38;5;57m", // Deep Sky Blue
		"\033[38;5;51m", // Cornflower Blue
	}
	banner := `
   _____   __    __                   __
  /  _  \_/  |__/  |_  ____   _______/  |_  ___________
 /  /_\  \   __\   __\/ __ \ /  ___/\   __\/  _ \_  __ \
/    |    \  |  |  | \  ___/ \___ \  |  | (  <_> )  | \/
\____|__  /__|  |__|  \___  >____  > |__|  \____/|__|
        \/                \/     \/
`
	lines := strings.Split(strings.Trim(banner, "\n"), "\n")
	for i, line := range lines {
		fmt.Printf("%s%s\n", colours[i%len(colours)], line)
	}
	fmt.Println("\033[0m") // Reset
}

func configureLogging(cmd *cobra.Command) *zap.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	json, _ := cmd.Flags().GetBool("json")

	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	if json {
		cfg.Encoding = "json"
	} else {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	// Command output goes to stdout; keep logs out of it.
	cfg.OutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	zap.ReplaceGlobals(logger)
	return logger
}
