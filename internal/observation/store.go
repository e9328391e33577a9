package observation

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	coreerrors "github.com/wormhole-demo/attestor/internal/errors"
	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/vaa"
	"github.com/wormhole-demo/attestor/internal/wire"
)

const (
	committedKeyPrefix = "Observation-committed-"
	indexKeyPrefix     = "Observation-buckets-"
	bucketKeyPrefix    = "Observation-pending-"
)

// bucketRef identifies one pending bucket of a message.
type bucketRef struct {
	GuardianSetIndex uint32
	Digest           [32]byte
	TxHash           [32]byte
}

// 4 bytes of set index, 32 of digest and 32 of tx hash.
const bucketRefSize = 4 + 32 + 32

// bucket accumulates signatures over one (set, digest, tx) tuple.
// Signatures are kept sorted by guardian index. The serialized body is stored
// after the encoded bucket without a length prefix.
type bucket struct {
	Ref        bucketRef
	Signatures []vaa.Signature
	Body       []byte `wire:"-"`
}

type committedRecord struct {
	Digest           [32]byte
	GuardianSetIndex uint32
	CommittedAt      uint32
	Body             []byte `wire:"-"`
}

func committedKey(id vaa.MessageID) []byte {
	return append([]byte(committedKeyPrefix), id.Key()...)
}

func indexKey(id vaa.MessageID) []byte {
	return append([]byte(indexKeyPrefix), id.Key()...)
}

func bucketKey(id vaa.MessageID, ref bucketRef) []byte {
	k := append([]byte(bucketKeyPrefix), id.Key()...)
	k = binary.BigEndian.AppendUint32(k, ref.GuardianSetIndex)
	k = append(k, ref.Digest[:]...)
	return append(k, ref.TxHash[:]...)
}

// state reads and writes the aggregation records of the store.
type state struct {
	store kvstore.Store
}

// encodeWithBody writes v then the raw body.
func encodeWithBody(v any, body []byte) ([]byte, error) {
	e := wire.NewEncoder(nil)
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	e.WriteRaw(body)
	return e.Bytes(), nil
}

func decodeWithBody(raw []byte, v any) ([]byte, error) {
	rest, err := wire.UnmarshalPrefix(raw, v)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), rest...), nil
}

func (s state) committed(ctx context.Context, id vaa.MessageID) (*committedRecord, error) {
	raw, err := s.store.Get(ctx, committedKey(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load committed record %s: %w", id, err)
	}
	var rec committedRecord
	if rec.Body, err = decodeWithBody(raw, &rec); err != nil {
		return nil, coreerrors.WireData(err, "decode committed record")
	}
	return &rec, nil
}

func (s state) putCommitted(b *kvstore.Batch, id vaa.MessageID, rec *committedRecord) error {
	raw, err := encodeWithBody(rec, rec.Body)
	if err != nil {
		return fmt.Errorf("failed to encode committed record %s: %w", id, err)
	}
	b.Put(committedKey(id), raw)
	return nil
}

// The index is a u32 count followed by the refs, so the number of buckets a
// message can hold is not bounded by the codec's sequence limit.
func encodeIndex(refs []bucketRef) ([]byte, error) {
	e := wire.NewEncoder(nil)
	if err := e.Encode(uint32(len(refs))); err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if err := e.Encode(ref); err != nil {
			return nil, err
		}
	}
	return e.Bytes(), nil
}

func decodeIndex(raw []byte) ([]bucketRef, error) {
	d := wire.NewDecoder(raw)
	var n uint32
	if err := d.Decode(&n); err != nil {
		return nil, err
	}
	refs := make([]bucketRef, 0, min(int(n), d.Len()/bucketRefSize))
	for range n {
		var ref bucketRef
		if err := d.Decode(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if d.Len() != 0 {
		return nil, fmt.Errorf("%w: %d bytes", wire.ErrTrailingData, d.Len())
	}
	return refs, nil
}

func (s state) index(ctx context.Context, id vaa.MessageID) ([]bucketRef, error) {
	raw, err := s.store.Get(ctx, indexKey(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load bucket index %s: %w", id, err)
	}
	refs, err := decodeIndex(raw)
	if err != nil {
		return nil, coreerrors.WireData(err, "decode bucket index")
	}
	return refs, nil
}

func (s state) putIndex(b *kvstore.Batch, id vaa.MessageID, refs []bucketRef) error {
	raw, err := encodeIndex(refs)
	if err != nil {
		return fmt.Errorf("failed to encode bucket index %s: %w", id, err)
	}
	b.Put(indexKey(id), raw)
	return nil
}

func (s state) bucket(ctx context.Context, id vaa.MessageID, ref bucketRef) (*bucket, error) {
	raw, err := s.store.Get(ctx, bucketKey(id, ref))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending bucket %s: %w", id, err)
	}
	var bk bucket
	if bk.Body, err = decodeWithBody(raw, &bk); err != nil {
		return nil, coreerrors.WireData(err, "decode pending bucket")
	}
	return &bk, nil
}

func (s state) putBucket(b *kvstore.Batch, id vaa.MessageID, bk *bucket) error {
	raw, err := encodeWithBody(bk, bk.Body)
	if err != nil {
		return fmt.Errorf("failed to encode pending bucket %s: %w", id, err)
	}
	b.Put(bucketKey(id, bk.Ref), raw)
	return nil
}

// clearPending queues the removal of every bucket of id and the index naming them.
func (s state) clearPending(b *kvstore.Batch, id vaa.MessageID, refs []bucketRef) {
	for _, ref := range refs {
		b.Remove(bucketKey(id, ref))
	}
	if len(refs) != 0 {
		b.Remove(indexKey(id))
	}
}

func (s state) write(ctx context.Context, id vaa.MessageID, b *kvstore.Batch) error {
	if err := s.store.Write(ctx, b); err != nil {
		return fmt.Errorf("failed to store aggregation state %s: %w", id, err)
	}
	return nil
}
