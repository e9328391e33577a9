package kvstoretest

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/wormhole-demo/attestor/internal/kvstore"
)

var ErrInjected = errors.New("injected write failure")

// FaultyStore fails the next write that touches a key with an armed prefix.
// A failing batch is rejected as a whole, the way an atomic backend would.
type FaultyStore struct {
	kvstore.Store

	mu     sync.Mutex
	prefix []byte
	armed  bool
	writes int
}

func NewFaultyStore(s kvstore.Store) *FaultyStore {
	return &FaultyStore{Store: s}
}

// FailNextWrite arms a single failure for keys starting with prefix.
func (f *FaultyStore) FailNextWrite(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefix = []byte(prefix)
	f.armed = true
}

// Writes reports how many writes reached the wrapped store.
func (f *FaultyStore) Writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (f *FaultyStore) trip(keys ...[]byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.armed {
		for _, k := range keys {
			if bytes.HasPrefix(k, f.prefix) {
				f.armed = false
				return ErrInjected
			}
		}
	}
	f.writes++
	return nil
}

func (f *FaultyStore) Put(ctx context.Context, key, value []byte) error {
	if err := f.trip(key); err != nil {
		return err
	}
	return f.Store.Put(ctx, key, value)
}

func (f *FaultyStore) Remove(ctx context.Context, key []byte) error {
	if err := f.trip(key); err != nil {
		return err
	}
	return f.Store.Remove(ctx, key)
}

func (f *FaultyStore) Write(ctx context.Context, b *kvstore.Batch) error {
	var keys [][]byte
	_ = b.Each(func(key, _ []byte, _ bool) error {
		keys = append(keys, key)
		return nil
	})
	if err := f.trip(keys...); err != nil {
		return err
	}
	return f.Store.Write(ctx, b)
}
