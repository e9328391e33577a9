package kvstore

import (
	"context"
	"errors"
	"sync"
)

var ErrSessionOpen = errors.New("staging session already open")

// Staging is a Store that, between Begin and Flush, keeps writes in memory
// and answers reads from them first. Flush applies the kept writes to the
// underlying store as a single Batch, so an operation spread over several
// components either lands completely or not at all. Outside a session writes
// go straight through.
//
// Staging does not serialize sessions. Readers that must not observe
// unflushed writes need to be serialized with the session owner.
type Staging struct {
	base Store

	mu      sync.RWMutex
	active  bool
	pending Batch
	view    map[string]stagedValue
}

type stagedValue struct {
	value   []byte
	removed bool
}

func NewStaging(base Store) *Staging {
	return &Staging{base: base}
}

// Begin opens a session.
func (s *Staging) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrSessionOpen
	}
	s.active = true
	s.pending.Reset()
	s.view = make(map[string]stagedValue)
	return nil
}

// Flush closes the session and writes everything it staged. On error none
// of the staged writes reach the underlying store.
func (s *Staging) Flush(ctx context.Context) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	var b Batch
	b.Append(&s.pending)
	s.close()
	s.mu.Unlock()

	return s.base.Write(ctx, &b)
}

// Discard closes the session and drops what it staged. It is a no-op
// without an open session, so it can be deferred next to Begin.
func (s *Staging) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.close()
}

func (s *Staging) close() {
	s.active = false
	s.pending = Batch{}
	s.view = nil
}

func (s *Staging) Get(ctx context.Context, key []byte) ([]byte, error) {
	s.mu.RLock()
	if s.active {
		if v, ok := s.view[string(key)]; ok {
			s.mu.RUnlock()
			if v.removed {
				return nil, ErrNotFound
			}
			return append([]byte(nil), v.value...), nil
		}
	}
	s.mu.RUnlock()
	return s.base.Get(ctx, key)
}

func (s *Staging) Put(ctx context.Context, key, value []byte) error {
	var b Batch
	b.Put(key, value)
	return s.Write(ctx, &b)
}

func (s *Staging) Remove(ctx context.Context, key []byte) error {
	var b Batch
	b.Remove(key)
	return s.Write(ctx, &b)
}

func (s *Staging) Write(ctx context.Context, b *Batch) error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return s.base.Write(ctx, b)
	}
	defer s.mu.Unlock()

	s.pending.Append(b)
	for _, op := range b.ops {
		s.view[string(op.key)] = stagedValue{value: op.value, removed: op.remove}
	}
	return nil
}
