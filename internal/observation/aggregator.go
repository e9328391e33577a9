// Package observation aggregates guardian observations into committed messages
// and keeps committed digests for replay protection.
package observation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"go.uber.org/zap"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/guardianset"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/sigverify"
	"github.com/wormhole-demo/attestor/internal/vaa"
)

// Submission is one guardian's signed observation of a message.
// ID and Digest must match what Body decodes and hashes to.
type Submission struct {
	ID               vaa.MessageID
	GuardianSetIndex uint32
	Digest           [32]byte
	TxHash           [32]byte
	Signature        vaa.Signature
	Body             []byte
}

// SignedObservation is the form guardians gossip: the identity key and digest
// are derived from the body.
type SignedObservation struct {
	GuardianSetIndex uint32
	TxHash           [32]byte
	Signature        vaa.Signature
	Body             []byte `wire:"-"`
}

// Submission derives the identity key and digest of o.
func (o *SignedObservation) Submission() (Submission, error) {
	body, err := vaa.ParseBody(o.Body)
	if err != nil {
		return Submission{}, err
	}
	return Submission{
		ID:               body.MessageID(),
		GuardianSetIndex: o.GuardianSetIndex,
		Digest:           vaa.Digest(o.Body),
		TxHash:           o.TxHash,
		Signature:        o.Signature,
		Body:             o.Body,
	}, nil
}

// MarshalSignedObservation writes o with its body appended unprefixed.
func MarshalSignedObservation(o *SignedObservation) ([]byte, error) {
	return encodeWithBody(o, o.Body)
}

func UnmarshalSignedObservation(raw []byte) (*SignedObservation, error) {
	var o SignedObservation
	body, err := decodeWithBody(raw, &o)
	if err != nil {
		return nil, coreerrors.WireData(err, "decode signed observation")
	}
	o.Body = body
	return &o, nil
}

// CommittedMessage is the terminal record of a message.
type CommittedMessage struct {
	ID               vaa.MessageID
	Digest           [32]byte
	GuardianSetIndex uint32
	CommittedAt      uint32
	Body             *vaa.Body
}

// BucketSummary describes one pending bucket.
type BucketSummary struct {
	GuardianSetIndex uint32
	Digest           [32]byte
	TxHash           [32]byte
	Signers          *bitset.BitSet
	Count            int
	// Quorum is 0 when the guardian set is no longer known.
	Quorum int
}

// CommitResult is returned by the direct VAA path.
type CommitResult struct {
	ID     vaa.MessageID
	Digest [32]byte
	// Replayed is set when the identical message was already committed.
	Replayed bool
}

// DefaultMaxBucketsPerGuardian bounds how many buckets of one message a
// guardian may open under one guardian set.
const DefaultMaxBucketsPerGuardian = 4

type AggregatorConfig struct {
	Store     kvstore.Store
	Guardians *guardianset.Registry
	Verifier  *sigverify.Verifier
	// Emitters, when set, rejects messages from unregistered emitters.
	Emitters *EmitterRegistry
	// MaxBucketsPerGuardian defaults to DefaultMaxBucketsPerGuardian.
	MaxBucketsPerGuardian int
}

// Aggregator runs the Unseen -> Pending -> Committed state machine of each
// message identity key. Every state change happens under one lock, so calls
// behave as if executed one at a time.
type Aggregator struct {
	logger    *zap.Logger
	state     state
	guardians *guardianset.Registry
	verifier  *sigverify.Verifier
	emitters  *EmitterRegistry
	maxOpens  int

	mu sync.Mutex
}

func NewAggregator(logger *zap.Logger, cfg AggregatorConfig) *Aggregator {
	if cfg.Verifier == nil {
		cfg.Verifier = sigverify.NewVerifier(nil)
	}
	if cfg.MaxBucketsPerGuardian <= 0 {
		cfg.MaxBucketsPerGuardian = DefaultMaxBucketsPerGuardian
	}
	return &Aggregator{
		logger:    logger.With(zap.String("component", "Aggregator")),
		state:     state{store: cfg.Store},
		guardians: cfg.Guardians,
		verifier:  cfg.Verifier,
		emitters:  cfg.Emitters,
		maxOpens:  cfg.MaxBucketsPerGuardian,
	}
}

// Submit merges one observation. All validation happens before any write, so
// a rejected observation leaves pending and committed state untouched.
func (a *Aggregator) Submit(ctx context.Context, sub Submission, now uint32) (Status, error) {
	body, err := vaa.ParseBody(sub.Body)
	if err != nil {
		return nil, err
	}
	if id := body.MessageID(); id != sub.ID {
		return nil, fmt.Errorf("%w: body is for %s, submission names %s", coreerrors.ErrInvalidWireData, id, sub.ID)
	}
	if d := vaa.Digest(sub.Body); d != sub.Digest {
		return nil, fmt.Errorf("%w: body digest %x does not match submitted digest %x", coreerrors.ErrInvalidWireData, d, sub.Digest)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	logger := a.logger.With(
		zap.Stringer("message_id", sub.ID),
		zap.Uint8("guardian_index", sub.Signature.Index),
	)

	committed, err := a.state.committed(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if committed != nil {
		if committed.Digest != sub.Digest {
			logger.Warn("Observation conflicts with committed digest",
				zap.Binary("committed_digest", committed.Digest[:]),
				zap.Binary("observed_digest", sub.Digest[:]),
			)
			return nil, fmt.Errorf("%w: %s committed with %x, observed %x", coreerrors.ErrDigestMismatch, sub.ID, committed.Digest, sub.Digest)
		}
		return StatusCommitted{ID: sub.ID, Digest: committed.Digest, Body: body}, nil
	}

	if err := a.checkEmitter(ctx, body); err != nil {
		return nil, err
	}
	set, err := a.guardians.Active(ctx, sub.GuardianSetIndex, now)
	if err != nil {
		return nil, err
	}
	if err := a.verifier.VerifySignature(sub.Digest, sub.Signature, set); err != nil {
		return nil, err
	}

	ref := bucketRef{GuardianSetIndex: sub.GuardianSetIndex, Digest: sub.Digest, TxHash: sub.TxHash}
	refs, err := a.state.index(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	b, err := a.state.bucket(ctx, sub.ID, ref)
	if err != nil {
		return nil, err
	}
	isNew := b == nil
	if isNew {
		if err := a.checkOpens(ctx, sub, refs); err != nil {
			return nil, err
		}
		b = &bucket{Ref: ref, Body: sub.Body}
		refs = append(refs, ref)
	}

	quorum := set.Quorum()
	if signers(b.Signatures).Test(uint(sub.Signature.Index)) {
		logger.Debug("Guardian already observed bucket")
		return pendingStatus(len(b.Signatures), quorum), nil
	}

	pos, _ := slices.BinarySearchFunc(b.Signatures, sub.Signature.Index, func(s vaa.Signature, idx uint8) int {
		return int(s.Index) - int(idx)
	})
	b.Signatures = slices.Insert(b.Signatures, pos, sub.Signature)

	var batch kvstore.Batch
	if len(b.Signatures) >= quorum {
		rec := &committedRecord{
			Digest:           sub.Digest,
			GuardianSetIndex: sub.GuardianSetIndex,
			CommittedAt:      now,
			Body:             b.Body,
		}
		if err := a.state.putCommitted(&batch, sub.ID, rec); err != nil {
			return nil, err
		}
		a.state.clearPending(&batch, sub.ID, refs)
		if err := a.state.write(ctx, sub.ID, &batch); err != nil {
			return nil, err
		}
		logger.Info("Committed observed message",
			zap.Binary("digest", sub.Digest[:]),
			zap.Uint32("guardian_set_index", sub.GuardianSetIndex),
			zap.Int("signatures", len(b.Signatures)),
		)
		return StatusCommitted{ID: sub.ID, Digest: sub.Digest, Body: body}, nil
	}

	if err := a.state.putBucket(&batch, sub.ID, b); err != nil {
		return nil, err
	}
	if isNew {
		if err := a.state.putIndex(&batch, sub.ID, refs); err != nil {
			return nil, err
		}
	}
	if err := a.state.write(ctx, sub.ID, &batch); err != nil {
		return nil, err
	}
	if isNew {
		logger.Debug("Opened pending bucket", zap.Binary("digest", sub.Digest[:]), zap.Int("buckets", len(refs)))
	}
	logger.Debug("Merged observation", zap.Int("signatures", len(b.Signatures)), zap.Int("quorum", quorum))
	return pendingStatus(len(b.Signatures), quorum), nil
}

// CheckReplay reports whether a message with digest may still be committed.
// It returns nil when id is not committed, an ErrAlreadyCommitted error when
// it is committed with the same digest and ErrDigestMismatch otherwise.
func (a *Aggregator) CheckReplay(ctx context.Context, id vaa.MessageID, digest [32]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.checkReplay(ctx, id, digest)
}

func (a *Aggregator) checkReplay(ctx context.Context, id vaa.MessageID, digest [32]byte) error {
	committed, err := a.state.committed(ctx, id)
	if err != nil {
		return err
	}
	if committed == nil {
		return nil
	}
	if committed.Digest != digest {
		return fmt.Errorf("%w: %s committed with %x, got %x", coreerrors.ErrDigestMismatch, id, committed.Digest, digest)
	}
	return fmt.Errorf("%w: %s", coreerrors.ErrAlreadyCommitted, id)
}

// Commit records an already verified VAA as committed, bypassing pending
// buckets. Committing the identical message again is a successful replay.
func (a *Aggregator) Commit(ctx context.Context, v *vaa.VAA, now uint32) (*CommitResult, error) {
	body, err := v.Body.Marshal()
	if err != nil {
		return nil, coreerrors.WireData(err, "encode VAA body")
	}
	id := v.MessageID()
	res := &CommitResult{ID: id, Digest: vaa.Digest(body)}

	a.mu.Lock()
	defer a.mu.Unlock()

	err = a.checkReplay(ctx, id, res.Digest)
	if errors.Is(err, coreerrors.ErrAlreadyCommitted) {
		res.Replayed = true
		return res, nil
	}
	if err != nil {
		if errors.Is(err, coreerrors.ErrDigestMismatch) {
			a.logger.Warn("VAA conflicts with committed digest", zap.Stringer("message_id", id))
		}
		return nil, err
	}
	if err := a.checkEmitter(ctx, &v.Body); err != nil {
		return nil, err
	}

	rec := &committedRecord{
		Digest:           res.Digest,
		GuardianSetIndex: v.GuardianSetIndex,
		CommittedAt:      now,
		Body:             body,
	}
	refs, err := a.state.index(ctx, id)
	if err != nil {
		return nil, err
	}
	var batch kvstore.Batch
	if err := a.state.putCommitted(&batch, id, rec); err != nil {
		return nil, err
	}
	a.state.clearPending(&batch, id, refs)
	if err := a.state.write(ctx, id, &batch); err != nil {
		return nil, err
	}
	a.logger.Info("Committed VAA",
		zap.Stringer("message_id", id),
		zap.Binary("digest", res.Digest[:]),
		zap.Int("signatures", len(v.Signatures)),
	)
	return res, nil
}

// checkOpens rejects a new bucket when its guardian already signs
// maxOpens buckets of the message under the same guardian set. A guardian
// opens every bucket it is the first signer of, so this bounds the buckets
// of a message without ever blocking a guardian from joining one.
func (a *Aggregator) checkOpens(ctx context.Context, sub Submission, refs []bucketRef) error {
	opened := 0
	for _, ref := range refs {
		if ref.GuardianSetIndex != sub.GuardianSetIndex {
			continue
		}
		b, err := a.state.bucket(ctx, sub.ID, ref)
		if err != nil {
			return err
		}
		if b != nil && signers(b.Signatures).Test(uint(sub.Signature.Index)) {
			opened++
		}
	}
	if opened >= a.maxOpens {
		return fmt.Errorf("%w: guardian %d already signs %d buckets of %s",
			coreerrors.ErrTooManyPendingBuckets, sub.Signature.Index, opened, sub.ID)
	}
	return nil
}

func (a *Aggregator) checkEmitter(ctx context.Context, body *vaa.Body) error {
	if a.emitters == nil {
		return nil
	}
	return a.emitters.Check(ctx, body.EmitterChain, body.EmitterAddress)
}

// Committed returns the committed record of id, if any.
func (a *Aggregator) Committed(ctx context.Context, id vaa.MessageID) (*CommittedMessage, bool, error) {
	a.mu.Lock()
	rec, err := a.state.committed(ctx, id)
	a.mu.Unlock()
	if err != nil || rec == nil {
		return nil, false, err
	}
	body, err := vaa.ParseBody(rec.Body)
	if err != nil {
		return nil, false, err
	}
	return &CommittedMessage{
		ID:               id,
		Digest:           rec.Digest,
		GuardianSetIndex: rec.GuardianSetIndex,
		CommittedAt:      rec.CommittedAt,
		Body:             body,
	}, true, nil
}

// Pending summarizes the open buckets of id in the order they were opened.
func (a *Aggregator) Pending(ctx context.Context, id vaa.MessageID) ([]BucketSummary, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	refs, err := a.state.index(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]BucketSummary, 0, len(refs))
	for _, ref := range refs {
		b, err := a.state.bucket(ctx, id, ref)
		if err != nil {
			return nil, err
		}
		if b == nil {
			continue
		}
		sum := BucketSummary{
			GuardianSetIndex: ref.GuardianSetIndex,
			Digest:           ref.Digest,
			TxHash:           ref.TxHash,
			Signers:          signers(b.Signatures),
			Count:            len(b.Signatures),
		}
		set, err := a.guardians.Get(ctx, ref.GuardianSetIndex)
		switch {
		case err == nil:
			sum.Quorum = set.Quorum()
		case !errors.Is(err, coreerrors.ErrUnknownGuardianSet):
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

func signers(sigs []vaa.Signature) *bitset.BitSet {
	bs := bitset.New(uint(guardianset.MaxGuardians))
	for _, s := range sigs {
		bs.Set(uint(s.Index))
	}
	return bs
}

func pendingStatus(count, quorum int) StatusPending {
	return StatusPending{Signatures: uint8(count), Quorum: uint8(quorum)}
}
