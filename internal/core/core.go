// Package core wires storage, guardian sets, signature verification,
// aggregation and governance into the operations exposed to collaborators.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/governance"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/observation"
	"github.com/wormhole-demo/attestor/internal/sigverify"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

const DefaultGuardianSetExpiry = 24 * time.Hour

type Config struct {
	Network guardianset.Network
	// ChainID is the chain this deployment acts for; governance packets
	// must target it or chain 0.
	ChainID           vaa.ChainID
	GuardianSetExpiry time.Duration
	// InitialGuardianSet bootstraps an empty store. It may be nil when the
	// store is already initialized.
	InitialGuardianSet *guardianset.GuardianSet
	// EnforceEmitters rejects messages from emitters not registered through
	// token bridge governance.
	EnforceEmitters bool
	Recoverer       sigverify.Recoverer
	Clock           Clock
}

// ParsedVAA is a VAA that passed verification.
type ParsedVAA struct {
	*vaa.VAA
	ID          vaa.MessageID
	Digest      [32]byte
	GuardianSet *guardianset.GuardianSet
}

// SubmitResult is the outcome of SubmitVAA.
type SubmitResult struct {
	VAA *ParsedVAA
	// Replayed is set when the identical message had been committed before.
	Replayed bool
	// Governance describes the executed action of a governance VAA.
	Governance *governance.Record
}

type Core struct {
	logger *zap.Logger
	clock  Clock
	// Every component writes through store, so one operation's writes
	// reach the backend as a single batch.
	store *kvstore.Staging

	guardians  *guardianset.Registry
	verifier   *sigverify.Verifier
	emitters   *observation.EmitterRegistry
	aggregator *observation.Aggregator
	ledger     *governance.Ledger
	governance *governance.Router

	// Serializes state changing calls and the reads that must not see
	// their staged writes.
	mu sync.Mutex
}

func New(ctx context.Context, logger *zap.Logger, store kvstore.Store, cfg Config) (*Core, error) {
	if cfg.GuardianSetExpiry == 0 {
		cfg.GuardianSetExpiry = DefaultGuardianSetExpiry
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}

	staged := kvstore.NewStaging(store)
	c := &Core{
		logger:   logger.With(zap.String("component", "Core")),
		clock:    cfg.Clock,
		store:    staged,
		verifier: sigverify.NewVerifier(cfg.Recoverer),
		ledger:   governance.NewLedger(staged),
	}
	c.guardians = guardianset.NewRegistry(logger, staged, cfg.Network, cfg.GuardianSetExpiry)
	c.emitters = observation.NewEmitterRegistry(logger, staged)

	aggCfg := observation.AggregatorConfig{
		Store:     staged,
		Guardians: c.guardians,
		Verifier:  c.verifier,
	}
	if cfg.EnforceEmitters {
		aggCfg.Emitters = c.emitters
	}
	c.aggregator = observation.NewAggregator(logger, aggCfg)

	c.governance = governance.NewRouter(
		governance.NewCoreDispatcher(logger, cfg.ChainID, c.guardians, c.ledger),
		governance.NewTokenBridgeDispatcher(logger, cfg.ChainID, c.emitters, c.ledger),
		governance.NewAccountantDispatcher(logger, cfg.ChainID, c.ledger),
	)

	if cfg.InitialGuardianSet != nil {
		set := *cfg.InitialGuardianSet
		if set.CreationTime == 0 {
			set.CreationTime = c.clock.Now()
		}
		if err := c.guardians.Init(ctx, set); err != nil {
			return nil, fmt.Errorf("failed to initialize guardian set: %w", err)
		}
	}
	if _, err := c.guardians.CurrentIndex(ctx); err != nil {
		return nil, fmt.Errorf("no guardian set available: %w", err)
	}

	c.logger.Info("Core ready",
		zap.Stringer("network", cfg.Network),
		zap.Stringer("chain", cfg.ChainID),
		zap.Duration("guardian_set_expiry", cfg.GuardianSetExpiry),
		zap.Bool("enforce_emitters", cfg.EnforceEmitters),
	)
	return c, nil
}

// Now returns the time of the configured clock.
func (c *Core) Now() uint32 {
	return c.clock.Now()
}

// VerifyVAA decodes raw and checks its signatures against the guardian set it
// names, which must be active at now. It changes no state.
func (c *Core) VerifyVAA(ctx context.Context, raw []byte, now uint32) (*ParsedVAA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyVAA(ctx, raw, now)
}

func (c *Core) verifyVAA(ctx context.Context, raw []byte, now uint32) (*ParsedVAA, error) {
	v, err := vaa.Parse(raw)
	if err != nil {
		return nil, err
	}
	body, err := vaa.SplitBody(raw)
	if err != nil {
		return nil, err
	}
	digest := vaa.Digest(body)

	set, err := c.guardians.Active(ctx, v.GuardianSetIndex, now)
	if err != nil {
		return nil, err
	}
	if err := c.verifier.VerifySignatures(digest, v.Signatures, set); err != nil {
		return nil, err
	}
	return &ParsedVAA{VAA: v, ID: v.MessageID(), Digest: digest, GuardianSet: set}, nil
}

// SubmitVAA verifies raw and commits it. Resubmitting a committed VAA
// succeeds with Replayed set; a different VAA under a committed identity key
// fails with ErrDigestMismatch.
//
// Governance VAAs must be signed by the current guardian set. They are
// executed after the replay check, and the state changes of the action are
// written together with the commit record, so a failed action or write
// leaves nothing behind.
func (c *Core) SubmitVAA(ctx context.Context, raw []byte, now uint32) (*SubmitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	parsed, err := c.verifyVAA(ctx, raw, now)
	if err != nil {
		return nil, err
	}
	res := &SubmitResult{VAA: parsed}

	err = c.aggregator.CheckReplay(ctx, parsed.ID, parsed.Digest)
	if errors.Is(err, coreerrors.ErrAlreadyCommitted) {
		res.Replayed = true
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	if err := c.store.Begin(); err != nil {
		return nil, err
	}
	defer c.store.Discard()

	if vaa.IsGovernance(parsed.EmitterChain, parsed.EmitterAddress) {
		rec, err := c.dispatchGovernance(ctx, parsed, now)
		if err != nil {
			c.logger.Warn("Governance VAA rejected", zap.Stringer("message_id", parsed.ID), zap.Error(err))
			return nil, err
		}
		res.Governance = rec
	}

	commit, err := c.aggregator.Commit(ctx, parsed.VAA, now)
	if err != nil {
		return nil, err
	}
	if err := c.store.Flush(ctx); err != nil {
		c.logger.Error("Failed to persist VAA", zap.Stringer("message_id", parsed.ID), zap.Error(err))
		return nil, err
	}
	res.Replayed = commit.Replayed
	return res, nil
}

func (c *Core) dispatchGovernance(ctx context.Context, parsed *ParsedVAA, now uint32) (*governance.Record, error) {
	current, err := c.guardians.CurrentIndex(ctx)
	if err != nil {
		return nil, err
	}
	if parsed.GuardianSetIndex != current {
		return nil, fmt.Errorf("%w: governance signed by guardian set %d, current is %d",
			coreerrors.ErrGuardianSetExpired, parsed.GuardianSetIndex, current)
	}
	return c.governance.Dispatch(ctx, parsed.VAA, now)
}

// SubmitObservation merges one guardian observation at the clock's time.
func (c *Core) SubmitObservation(ctx context.Context, sub observation.Submission) (observation.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregator.Submit(ctx, sub, c.clock.Now())
}

// QueryCommitted returns the committed payload and digest of id, if any.
func (c *Core) QueryCommitted(ctx context.Context, id vaa.MessageID) (*observation.CommittedMessage, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregator.Committed(ctx, id)
}

func (c *Core) QueryPending(ctx context.Context, id vaa.MessageID) ([]observation.BucketSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aggregator.Pending(ctx, id)
}

func (c *Core) GuardianSet(ctx context.Context, index uint32) (*guardianset.GuardianSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guardians.Get(ctx, index)
}

func (c *Core) CurrentGuardianSet(ctx context.Context) (*guardianset.GuardianSet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guardians.Current(ctx)
}

// Emitter returns the emitter registered for chain, if any.
func (c *Core) Emitter(ctx context.Context, chain vaa.ChainID) (vaa.Address, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitters.Lookup(ctx, chain)
}

// Emitters exposes the registered foreign emitters.
func (c *Core) Emitters() *observation.EmitterRegistry {
	return c.emitters
}

// Ledger exposes governed fees, contracts and balances.
func (c *Core) Ledger() *governance.Ledger {
	return c.ledger
}
