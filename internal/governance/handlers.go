package governance

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

func unsupported(module string, a Action) error {
	return fmt.Errorf("%w: %s has no handler for %T", coreerrors.ErrUnsupportedGovernanceAction, module, a)
}

// NewCoreDispatcher handles guardian set rotation, fees and core contract upgrades.
func NewCoreDispatcher(logger *zap.Logger, chain vaa.ChainID, guardians *guardianset.Registry, ledger *Ledger) *Dispatcher {
	return newDispatcher(logger, ModuleCore, chain, func(ctx context.Context, _ *vaa.VAA, a Action, now uint32) (map[string]string, error) {
		switch act := a.(type) {
		case *ContractUpgrade:
			if err := ledger.SetContract(ctx, ModuleCore, act.NewContract); err != nil {
				return nil, err
			}
			return map[string]string{"new_contract": hex.EncodeToString(act.NewContract[:])}, nil

		case *GuardianSetUpgrade:
			keys := make([]common.Address, len(act.Keys))
			for i, k := range act.Keys {
				keys[i] = common.Address(k)
			}
			set, err := guardians.Rotate(ctx, act.NewIndex, keys, now)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"new_index": strconv.FormatUint(uint64(set.Index), 10),
				"guardians": strconv.Itoa(len(set.Keys)),
			}, nil

		case *SetMessageFee:
			fee := new(uint256.Int).SetBytes32(act.Fee[:])
			if err := ledger.SetMessageFee(ctx, fee); err != nil {
				return nil, err
			}
			return map[string]string{"fee": fee.Dec()}, nil

		case *TransferFees:
			amount := new(uint256.Int).SetBytes32(act.Amount[:])
			total, err := ledger.AddFeeTransfer(ctx, act.Recipient, amount)
			if err != nil {
				return nil, err
			}
			return map[string]string{
				"amount":    amount.Dec(),
				"recipient": hex.EncodeToString(act.Recipient[:]),
				"total":     total.Dec(),
			}, nil

		default:
			return nil, unsupported(ModuleCore, a)
		}
	})
}

// NewTokenBridgeDispatcher handles foreign emitter registration and bridge upgrades.
func NewTokenBridgeDispatcher(logger *zap.Logger, chain vaa.ChainID, emitters *observation.EmitterRegistry, ledger *Ledger) *Dispatcher {
	return newDispatcher(logger, ModuleTokenBridge, chain, func(ctx context.Context, _ *vaa.VAA, a Action, _ uint32) (map[string]string, error) {
		switch act := a.(type) {
		case *RegisterChain:
			emitterChain := vaa.ChainID(act.EmitterChain)
			if emitterChain == vaa.ChainIDUnset {
				return nil, fmt.Errorf("%w: cannot register chain 0", coreerrors.ErrUnregisteredChain)
			}
			if err := emitters.Register(ctx, emitterChain, act.EmitterAddress); err != nil {
				return nil, err
			}
			return map[string]string{
				"emitter_chain":   strconv.FormatUint(uint64(act.EmitterChain), 10),
				"emitter_address": hex.EncodeToString(act.EmitterAddress[:]),
			}, nil

		case *UpgradeContract:
			if err := ledger.SetContract(ctx, ModuleTokenBridge, act.NewContract); err != nil {
				return nil, err
			}
			return map[string]string{"new_contract": hex.EncodeToString(act.NewContract[:])}, nil

		default:
			return nil, unsupported(ModuleTokenBridge, a)
		}
	})
}

// NewAccountantDispatcher handles balance modifications of the global accountant.
func NewAccountantDispatcher(logger *zap.Logger, chain vaa.ChainID, ledger *Ledger) *Dispatcher {
	return newDispatcher(logger, ModuleGlobalAccountant, chain, func(ctx context.Context, _ *vaa.VAA, a Action, _ uint32) (map[string]string, error) {
		switch act := a.(type) {
		case *ModifyBalance:
			key := BalanceKey{
				ChainID:      vaa.ChainID(act.ChainID),
				TokenChain:   vaa.ChainID(act.TokenChain),
				TokenAddress: act.TokenAddress,
			}
			amount := new(uint256.Int).SetBytes32(act.Amount[:])
			bal, err := ledger.ModifyBalance(ctx, act.Sequence, key, act.Kind, amount)
			if err != nil {
				return nil, err
			}

			kind := "add"
			if _, ok := act.Kind.(ModificationSubtract); ok {
				kind = "subtract"
			}
			return map[string]string{
				"modification": strconv.FormatUint(act.Sequence, 10),
				"kind":         kind,
				"amount":       amount.Dec(),
				"balance":      bal.Dec(),
				"reason":       act.Reason,
			}, nil

		default:
			return nil, unsupported(ModuleGlobalAccountant, a)
		}
	})
}
