package guardianset

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/wire"
)

const (
	valueKeyPrefix = "GuardianSet-value-"
	currentKey     = "GuardianSet-current"
)

func valueKey(index uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte(valueKeyPrefix), index)
}

// Registry persists guardian sets and the current set index in a kvstore.Store.
// It performs no locking; callers serialize mutations.
type Registry struct {
	logger       *zap.Logger
	store        kvstore.Store
	network      Network
	expiryWindow time.Duration
}

func NewRegistry(logger *zap.Logger, store kvstore.Store, network Network, expiryWindow time.Duration) *Registry {
	return &Registry{
		logger:       logger.With(zap.String("component", "GuardianSetRegistry")),
		store:        store,
		network:      network,
		expiryWindow: expiryWindow,
	}
}

func (r *Registry) Network() Network {
	return r.network
}

// Init bootstraps an empty registry with set as the current guardian set.
// On a registry that already holds set.Index with the same keys, Init is a no-op.
func (r *Registry) Init(ctx context.Context, set GuardianSet) error {
	if err := validateKeys(set.Keys); err != nil {
		return err
	}

	_, err := r.CurrentIndex(ctx)
	switch {
	case err == nil:
		stored, err := r.Get(ctx, set.Index)
		if err != nil {
			return fmt.Errorf("registry already initialized without guardian set %d: %w", set.Index, err)
		}
		if !slices.Equal(stored.Keys, set.Keys) {
			return fmt.Errorf("%w: stored guardian set %d has different keys", coreerrors.ErrInvalidGuardianSet, set.Index)
		}
		return nil
	case errors.Is(err, coreerrors.ErrUnknownGuardianSet):
	default:
		return err
	}

	set.ExpirationTime = 0
	var b kvstore.Batch
	if err := stageSet(&b, &set); err != nil {
		return err
	}
	if err := stageCurrent(&b, set.Index); err != nil {
		return err
	}
	if err := r.store.Write(ctx, &b); err != nil {
		return fmt.Errorf("failed to store guardian set %d: %w", set.Index, err)
	}
	r.logger.Info("Initialized guardian set",
		zap.Uint32("index", set.Index),
		zap.Int("guardians", len(set.Keys)),
		zap.Int("quorum", set.Quorum()),
	)
	return nil
}

// Get returns the set stored under index.
func (r *Registry) Get(ctx context.Context, index uint32) (*GuardianSet, error) {
	raw, err := r.store.Get(ctx, valueKey(index))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", coreerrors.ErrUnknownGuardianSet, index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guardian set %d: %w", index, err)
	}
	var set GuardianSet
	if err := wire.Unmarshal(raw, &set); err != nil {
		return nil, coreerrors.WireData(err, "decode stored guardian set")
	}
	return &set, nil
}

// CurrentIndex returns the index of the newest guardian set.
func (r *Registry) CurrentIndex(ctx context.Context) (uint32, error) {
	raw, err := r.store.Get(ctx, []byte(currentKey))
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, fmt.Errorf("%w: registry not initialized", coreerrors.ErrUnknownGuardianSet)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load current guardian set index: %w", err)
	}
	var index uint32
	if err := wire.Unmarshal(raw, &index); err != nil {
		return 0, coreerrors.WireData(err, "decode current guardian set index")
	}
	return index, nil
}

func (r *Registry) Current(ctx context.Context) (*GuardianSet, error) {
	index, err := r.CurrentIndex(ctx)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, index)
}

// Active returns the set stored under index if it may sign at now.
func (r *Registry) Active(ctx context.Context, index uint32, now uint32) (*GuardianSet, error) {
	set, err := r.Get(ctx, index)
	if err != nil {
		return nil, err
	}
	if IsPermanentlyInactive(r.network, index) {
		return nil, fmt.Errorf("%w: guardian set %d is permanently inactive on %s", coreerrors.ErrGuardianSetExpired, index, r.network)
	}
	if !set.IsActive(now) {
		return nil, fmt.Errorf("%w: guardian set %d expired at %d (now %d)", coreerrors.ErrGuardianSetExpired, index, set.ExpirationTime, now)
	}
	return set, nil
}

// Rotate makes keys the current guardian set under newIndex, which must be
// exactly one past the current index. The previous set stays valid for the
// configured expiry window.
func (r *Registry) Rotate(ctx context.Context, newIndex uint32, keys []common.Address, now uint32) (*GuardianSet, error) {
	old, err := r.Current(ctx)
	if err != nil {
		return nil, err
	}
	if old.Index == ^uint32(0) || newIndex != old.Index+1 {
		return nil, fmt.Errorf("%w: current index %d, proposed %d", coreerrors.ErrGuardianSetRotationOrder, old.Index, newIndex)
	}
	if err := validateKeys(keys); err != nil {
		return nil, err
	}

	next := &GuardianSet{
		Index:        newIndex,
		Keys:         slices.Clone(keys),
		CreationTime: now,
	}
	old.ExpirationTime = now + uint32(r.expiryWindow/time.Second)

	var b kvstore.Batch
	if err := stageSet(&b, next); err != nil {
		return nil, err
	}
	if err := stageSet(&b, old); err != nil {
		return nil, err
	}
	if err := stageCurrent(&b, newIndex); err != nil {
		return nil, err
	}
	if err := r.store.Write(ctx, &b); err != nil {
		return nil, fmt.Errorf("failed to store guardian set rotation to %d: %w", newIndex, err)
	}

	r.logger.Info("Rotated guardian set",
		zap.Uint32("old_index", old.Index),
		zap.Uint32("new_index", newIndex),
		zap.Uint32("old_expiration", old.ExpirationTime),
		zap.Int("guardians", len(keys)),
	)
	return next, nil
}

func stageSet(b *kvstore.Batch, set *GuardianSet) error {
	raw, err := wire.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to encode guardian set %d: %w", set.Index, err)
	}
	b.Put(valueKey(set.Index), raw)
	return nil
}

func stageCurrent(b *kvstore.Batch, index uint32) error {
	raw, err := wire.Marshal(index)
	if err != nil {
		return err
	}
	b.Put([]byte(currentKey), raw)
	return nil
}
