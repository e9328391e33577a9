// Package kvstoretest holds the behaviour every kvstore.Store must share.
package kvstoretest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wormhole-demo/attestor/internal/kvstore"
)

type StoreFactory func(t *testing.T) kvstore.Store

func TestStoreCompliance(t *testing.T, f StoreFactory) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		_, err := s.Get(ctx, []byte("nope"))
		require.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("put get overwrite", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		key := []byte{0, 1, 2, 0xff}

		require.NoError(t, s.Put(ctx, key, []byte("first")))
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("first"), got)

		require.NoError(t, s.Put(ctx, key, []byte("second")))
		got, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, []byte("second"), got)
	})

	t.Run("remove", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		require.NoError(t, s.Put(ctx, []byte("k"), []byte("v")))
		require.NoError(t, s.Remove(ctx, []byte("k")))

		_, err := s.Get(ctx, []byte("k"))
		require.ErrorIs(t, err, kvstore.ErrNotFound)

		// Removing again is fine.
		require.NoError(t, s.Remove(ctx, []byte("k")))
	})

	t.Run("empty value is present", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		require.NoError(t, s.Put(ctx, []byte("empty"), nil))
		got, err := s.Get(ctx, []byte("empty"))
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("values are copied", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		val := []byte("hello")
		require.NoError(t, s.Put(ctx, []byte("k"), val))
		val[0] = 'j'

		got, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), got)

		got[0] = 'y'
		again, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), again)
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		require.NoError(t, s.Put(ctx, []byte("a"), []byte("1")))
		require.NoError(t, s.Put(ctx, []byte("ab"), []byte("2")))
		require.NoError(t, s.Remove(ctx, []byte("a")))

		got, err := s.Get(ctx, []byte("ab"))
		require.NoError(t, err)
		require.Equal(t, []byte("2"), got)
	})

	t.Run("prefixed namespaces do not collide", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		a := kvstore.Prefixed(s, "a/")
		b := kvstore.Prefixed(s, "b/")

		require.NoError(t, a.Put(ctx, []byte("k"), []byte("from a")))
		_, err := b.Get(ctx, []byte("k"))
		require.ErrorIs(t, err, kvstore.ErrNotFound)

		got, err := s.Get(ctx, []byte("a/k"))
		require.NoError(t, err)
		require.Equal(t, []byte("from a"), got)
	})

	t.Run("batch applies in order", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		require.NoError(t, s.Put(ctx, []byte("gone"), []byte("x")))

		var b kvstore.Batch
		b.Put([]byte("k"), []byte("1"))
		b.Put([]byte("k"), []byte("2"))
		b.Remove([]byte("gone"))
		b.Put([]byte("tmp"), []byte("t"))
		b.Remove([]byte("tmp"))
		b.Put([]byte("empty"), nil)
		require.Equal(t, 6, b.Len())
		require.NoError(t, s.Write(ctx, &b))

		got, err := s.Get(ctx, []byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("2"), got)

		for _, k := range []string{"gone", "tmp"} {
			_, err = s.Get(ctx, []byte(k))
			require.ErrorIs(t, err, kvstore.ErrNotFound, k)
		}

		got, err = s.Get(ctx, []byte("empty"))
		require.NoError(t, err)
		require.Empty(t, got)

		require.NoError(t, s.Write(ctx, &kvstore.Batch{}))
	})

	t.Run("batch through prefix", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		var b kvstore.Batch
		b.Put([]byte("k"), []byte("v"))
		require.NoError(t, kvstore.Prefixed(s, "p/").Write(ctx, &b))

		got, err := s.Get(ctx, []byte("p/k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
	})

	t.Run("concurrent writers", func(t *testing.T) {
		t.Parallel()

		s := f(t)
		var wg sync.WaitGroup
		for i := range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				k := []byte(fmt.Sprintf("key-%d", i))
				require.NoError(t, s.Put(ctx, k, k))
			}()
		}
		wg.Wait()

		for i := range 16 {
			k := []byte(fmt.Sprintf("key-%d", i))
			got, err := s.Get(ctx, k)
			require.NoError(t, err)
			require.Equal(t, k, got)
		}
	})
}
