package kvstore_test

import (
	"testing"

	"github.com/wormhole-demo/attestor/internal/kvstore"
	"github.com/wormhole-demo/attestor/internal/kvstore/kvstoretest"
)

func TestMemStoreCompliance(t *testing.T) {
	t.Parallel()

	kvstoretest.TestStoreCompliance(t, func(*testing.T) kvstore.Store {
		return kvstore.NewMemStore()
	})
}
