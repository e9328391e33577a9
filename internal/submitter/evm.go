package submitter

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EVMRelayer is the transaction sender behind EVMSubmitter; clients.EVMClient implements it.
type EVMRelayer interface {
	RelayVAA(ctx context.Context, targetContract string, vaaBytes []byte) (string, error)
	GetAddress() common.Address
}

// EVMSubmitter forwards VAAs to a contract on an EVM chain.
type EVMSubmitter struct {
	targetContract string
	relayer        EVMRelayer
	logger         *zap.Logger
}

func NewEVMSubmitter(logger *zap.Logger, targetContract string, relayer EVMRelayer) *EVMSubmitter {
	return &EVMSubmitter{
		targetContract: targetContract,
		relayer:        relayer,
		logger:         logger.With(zap.String("component", "EVMSubmitter")),
	}
}

func (s *EVMSubmitter) SubmitVAA(ctx context.Context, vaaBytes []byte) (string, error) {
	s.logger.Info("Submitting VAA to EVM",
		zap.Int("vaaLength", len(vaaBytes)),
		zap.String("targetContract", s.targetContract),
		zap.String("fromAddress", s.relayer.GetAddress().Hex()))

	txHash, err := s.relayer.RelayVAA(ctx, s.targetContract, vaaBytes)
	if err != nil {
		return "", fmt.Errorf("failed to submit VAA to EVM: %w", err)
	}

	s.logger.Info("VAA submitted to EVM",
		zap.String("txHash", txHash),
		zap.String("targetContract", s.targetContract))
	return txHash, nil
}
