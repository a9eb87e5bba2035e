package testutil

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/store"
)

// OpenStore opens a fresh in-memory ledger store, closed on test cleanup.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// SeedRecords inserts records directly, bypassing engine evaluation, for
// arranging test preconditions.
func SeedRecords(t *testing.T, st *store.Store, seq int64, recs ...*record.ResourceRecord) {
	t.Helper()
	effects := make([]store.Effect, len(recs))
	for i, r := range recs {
		effects[i] = store.Effect{Kind: store.EffectCreate, Address: r.Address, Record: r}
	}
	require.NoError(t, st.Apply(context.Background(), effects, seq))
}

// AccountAddress returns a stable address for a named test account.
func AccountAddress(name string) record.Address {
	return record.Address(sha256.Sum256([]byte("testutil/account/" + name)))
}
