// Package kvstore defines the key-value interface the attestation core persists
// through, and the host bindings that implement it.
package kvstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// Store is the only storage capability the core depends on.
//
// Implementations copy keys and values on the way in and out,
// so callers may reuse their buffers.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key []byte) error

	// Write applies every operation of b in order, all or nothing.
	Write(ctx context.Context, b *Batch) error
}

// Batch collects puts and removes that Store.Write applies atomically.
// The zero value is an empty batch.
type Batch struct {
	ops []batchOp
}

type batchOp struct {
	key    []byte
	value  []byte
	remove bool
}

// Put queues a write of value under key. Both are copied.
func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{
		key:   append([]byte(nil), key...),
		value: append(make([]byte, 0, len(value)), value...),
	})
}

// Remove queues the deletion of key.
func (b *Batch) Remove(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), remove: true})
}

// Len reports the number of queued operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// Reset empties b so it can be reused.
func (b *Batch) Reset() {
	b.ops = b.ops[:0]
}

// Append queues every operation of other after those of b.
func (b *Batch) Append(other *Batch) {
	b.ops = append(b.ops, other.ops...)
}

// Each calls fn for every queued operation in order. value is nil for removals.
// It stops at the first error fn returns.
func (b *Batch) Each(fn func(key, value []byte, remove bool) error) error {
	for _, op := range b.ops {
		if err := fn(op.key, op.value, op.remove); err != nil {
			return err
		}
	}
	return nil
}

// Prefixed returns a Store that namespaces every key of s under prefix.
func Prefixed(s Store, prefix string) Store {
	return prefixed{s: s, prefix: []byte(prefix)}
}

type prefixed struct {
	s      Store
	prefix []byte
}

func (p prefixed) key(k []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(k))
	out = append(out, p.prefix...)
	return append(out, k...)
}

func (p prefixed) Get(ctx context.Context, key []byte) ([]byte, error) {
	return p.s.Get(ctx, p.key(key))
}

func (p prefixed) Put(ctx context.Context, key, value []byte) error {
	return p.s.Put(ctx, p.key(key), value)
}

func (p prefixed) Remove(ctx context.Context, key []byte) error {
	return p.s.Remove(ctx, p.key(key))
}

func (p prefixed) Write(ctx context.Context, b *Batch) error {
	var out Batch
	for _, op := range b.ops {
		out.ops = append(out.ops, batchOp{key: p.key(op.key), value: op.value, remove: op.remove})
	}
	return p.s.Write(ctx, &out)
}
