package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wormhole-demo/attestor/internal"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <hex|base64|@file|->",
	Short: "Decode a VAA and print its fields",
	Long:  `Decodes a VAA, including governance packets, without verifying it.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readVAAArg(args[0], cmd.InOrStdin())
		if err != nil {
			return err
		}
		out, err := internal.Inspect(raw)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
