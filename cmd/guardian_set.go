package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wormhole-demo/attestor/internal/guardianset"
)

var guardianSetCmd = &cobra.Command{
	Use:   "guardian-set [index]",
	Short: "Show a guardian set from the configured store",
	Long: `Prints the current guardian set, or the set with the given index, together
with its quorum and whether it still verifies signatures.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGuardianSet,
}

func init() {
	rootCmd.AddCommand(guardianSetCmd)
}

type guardianSetOutput struct {
	Index          uint32   `json:"index"`
	Keys           []string `json:"keys"`
	Quorum         int      `json:"quorum"`
	CreationTime   uint32   `json:"creationTime"`
	ExpirationTime uint32   `json:"expirationTime"`
	Active         bool     `json:"active"`
}

func runGuardianSet(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd)
	defer logger.Sync()
	ctx := context.Background()

	c, cfg, closeStore, err := openCore(ctx, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var set *guardianset.GuardianSet
	if len(args) == 1 {
		index, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid guardian set index %q: %w", args[0], err)
		}
		set, err = c.GuardianSet(ctx, uint32(index))
		if err != nil {
			return err
		}
	} else {
		set, err = c.CurrentGuardianSet(ctx)
		if err != nil {
			return err
		}
	}

	keys := make([]string, len(set.Keys))
	for i, k := range set.Keys {
		keys[i] = k.Hex()
	}
	now := c.Now()
	return printJSON(cmd.OutOrStdout(), guardianSetOutput{
		Index:          set.Index,
		Keys:           keys,
		Quorum:         set.Quorum(),
		CreationTime:   set.CreationTime,
		ExpirationTime: set.ExpirationTime,
		Active:         set.IsActive(now) && !guardianset.IsPermanentlyInactive(cfg.Network, set.Index),
	})
}
