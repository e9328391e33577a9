package cmd

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wormhole-demo/attestor/internal/clients"
	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <hex|base64|@file|->",
	Short: "Verify the guardian signatures of a VAA",
	Long: `Checks a VAA against the guardian set it names, without committing it.

By default the configured store and guardian keys are used. With --remote the
VAA is sent to the /verify endpoint of a running attestor instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().String("remote", "", "Base URL of an attestor API to verify against")
}

type verifyOutput struct {
	Valid            bool   `json:"valid"`
	MessageID        string `json:"messageId,omitempty"`
	Digest           string `json:"digest,omitempty"`
	GuardianSetIndex uint32 `json:"guardianSetIndex,omitempty"`
	Error            string `json:"error,omitempty"`
	Code             uint32 `json:"code,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd)
	defer logger.Sync()
	ctx := context.Background()

	raw, err := readVAAArg(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	var out verifyOutput
	if remote, _ := cmd.Flags().GetString("remote"); remote != "" {
		res, err := clients.NewVerificationServiceClient(logger, remote).VerifyVAA(ctx, raw)
		if err != nil {
			return err
		}
		out = verifyOutput{
			Valid:            res.Success,
			MessageID:        res.MessageID,
			Digest:           res.Digest,
			GuardianSetIndex: res.GuardianSetIndex,
			Error:            res.Error,
			Code:             res.Code,
		}
	} else {
		c, _, closeStore, err := openCore(ctx, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		parsed, err := c.VerifyVAA(ctx, raw, c.Now())
		if err != nil {
			out = verifyOutput{Error: err.Error()}
			if kind := coreerrors.KindOf(err); kind != nil {
				out.Code = kind.ABCICode()
			}
		} else {
			out = verifyOutput{
				Valid:            true,
				MessageID:        parsed.ID.String(),
				Digest:           hex.EncodeToString(parsed.Digest[:]),
				GuardianSetIndex: parsed.GuardianSetIndex,
			}
		}
	}

	if err := printJSON(cmd.OutOrStdout(), out); err != nil {
		return err
	}
	if !out.Valid {
		return fmt.Errorf("VAA is not valid")
	}
	return nil
}
