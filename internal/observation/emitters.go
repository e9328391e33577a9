package observation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

const emitterKeyPrefix = "Emitter-"

func emitterKey(chain vaa.ChainID) []byte {
	return binary.BigEndian.AppendUint16([]byte(emitterKeyPrefix), uint16(chain))
}

// EmitterRegistry records the one trusted emitter address of each foreign chain.
type EmitterRegistry struct {
	logger *zap.Logger
	store  kvstore.Store
}

func NewEmitterRegistry(logger *zap.Logger, store kvstore.Store) *EmitterRegistry {
	return &EmitterRegistry{
		logger: logger.With(zap.String("component", "EmitterRegistry")),
		store:  store,
	}
}

// Register trusts emitter for chain. A chain can be registered once.
func (r *EmitterRegistry) Register(ctx context.Context, chain vaa.ChainID, emitter vaa.Address) error {
	existing, ok, err := r.Lookup(ctx, chain)
	if err != nil {
		return err
	}
	if ok {
		if existing == emitter {
			return nil
		}
		return fmt.Errorf("%w: chain %s already has emitter %s", coreerrors.ErrChainAlreadyRegistered, chain, existing)
	}
	if err := r.store.Put(ctx, emitterKey(chain), emitter[:]); err != nil {
		return fmt.Errorf("failed to store emitter for chain %s: %w", chain, err)
	}
	r.logger.Info("Registered emitter",
		zap.Stringer("chain", chain),
		zap.Stringer("emitter", emitter),
	)
	return nil
}

// Lookup returns the registered emitter of chain, if any.
func (r *EmitterRegistry) Lookup(ctx context.Context, chain vaa.ChainID) (vaa.Address, bool, error) {
	var addr vaa.Address
	raw, err := r.store.Get(ctx, emitterKey(chain))
	if errors.Is(err, kvstore.ErrNotFound) {
		return addr, false, nil
	}
	if err != nil {
		return addr, false, fmt.Errorf("failed to load emitter for chain %s: %w", chain, err)
	}
	if len(raw) != len(addr) {
		return addr, false, fmt.Errorf("%w: stored emitter has %d bytes", coreerrors.ErrInvalidWireData, len(raw))
	}
	copy(addr[:], raw)
	return addr, true, nil
}

// Check accepts the governance emitter and the registered emitter of each chain.
func (r *EmitterRegistry) Check(ctx context.Context, chain vaa.ChainID, emitter vaa.Address) error {
	if vaa.IsGovernance(chain, emitter) {
		return nil
	}
	registered, ok, err := r.Lookup(ctx, chain)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", coreerrors.ErrUnregisteredChain, chain)
	}
	if registered != emitter {
		return fmt.Errorf("%w: %s on chain %s", coreerrors.ErrUnknownEmitter, emitter, chain)
	}
	return nil
}
