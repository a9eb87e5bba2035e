package store

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate/record"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func testAddress(name string) record.Address {
	return record.Address(sha256.Sum256([]byte(name)))
}

func testRecord(name string) *record.ResourceRecord {
	return &record.ResourceRecord{
		Address:    testAddress(name),
		Controller: "component.vault",
		TypeTag:    record.TypeTag{1, 2, 3, 4, 5, 6, 7, 8},
		Payload:    []byte(`{"balance":10}`),
		Mutable:    true,
	}
}

func TestCreateAndGet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("a")

	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 1))

	got, err := st.GetRecord(ctx, rec.Address)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rec.Controller, got.Controller)
	assert.Equal(t, rec.TypeTag, got.TypeTag)
	assert.Equal(t, rec.Payload, got.Payload)
	assert.True(t, got.Mutable)
}

func TestGetAbsentRecordIsNil(t *testing.T) {
	st := openTestStore(t)
	got, err := st.GetRecord(context.Background(), testAddress("nothing"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateOverExistingFails(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("a")

	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 1))
	err := st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 2)
	assert.Error(t, err)
}

func TestApplyIsAtomic(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	a := testRecord("a")

	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: a.Address, Record: a}}, 1))

	// A batch where the second effect fails must leave the first unapplied.
	updated := a.Clone()
	updated.Payload = []byte(`{"balance":99}`)
	err := st.Apply(ctx, []Effect{
		{Kind: EffectUpdate, Address: updated.Address, Record: updated},
		{Kind: EffectCreate, Address: a.Address, Record: a},
	}, 2)
	require.Error(t, err)

	got, err := st.GetRecord(ctx, a.Address)
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"balance":10}`), got.Payload, "failed batch must roll back entirely")
}

func TestUpdateMissingRecordFails(t *testing.T) {
	st := openTestStore(t)
	rec := testRecord("ghost")
	err := st.Apply(context.Background(), []Effect{{Kind: EffectUpdate, Address: rec.Address, Record: rec}}, 1)
	assert.ErrorContains(t, err, "expected 1 row affected")
}

func TestCloseResetsRecord(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("a")

	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 1))
	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectClose, Address: rec.Address}}, 2))

	got, err := st.GetRecord(ctx, rec.Address)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.NeutralController, got.Controller)
	assert.Empty(t, got.Payload)
	assert.False(t, got.Mutable)
}

func TestSnapshotMixedPresence(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("present")

	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 1))

	snap, err := st.Snapshot(ctx, []record.Address{rec.Address, testAddress("absent")})
	require.NoError(t, err)
	assert.NotNil(t, snap[rec.Address])
	assert.Nil(t, snap[testAddress("absent")])
}

func TestAuditOrdering(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendAudit(ctx, AuditRow{OpToken: "op-2", OpType: "vault.deposit", Verdict: "accepted", Slot: -1, Seq: 3}))
	require.NoError(t, st.AppendAudit(ctx, AuditRow{OpToken: "op-1", OpType: "vault.withdraw", Verdict: "rejected", ErrorKind: "MISSING_ENDORSEMENT", Slot: 0, Seq: 2}))

	rows, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "op-1", rows[0].OpToken)
	assert.Equal(t, "MISSING_ENDORSEMENT", rows[0].ErrorKind)
	assert.Equal(t, 0, rows[0].Slot)
	assert.Equal(t, "op-2", rows[1].OpToken)
	assert.Equal(t, -1, rows[1].Slot)
}

func TestApplyWithAuditWritesBoth(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("a")

	row := AuditRow{OpToken: "op-1", OpType: "vault.initialize", Verdict: "accepted", Slot: -1, Seq: 1}
	require.NoError(t, st.ApplyWithAudit(ctx,
		[]Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 1, &row))

	got, err := st.GetRecord(ctx, rec.Address)
	require.NoError(t, err)
	assert.NotNil(t, got)

	rows, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "op-1", rows[0].OpToken)
}

func TestApplyWithAuditRollsBackTogether(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	rec := testRecord("a")

	require.NoError(t, st.Apply(ctx, []Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 1))

	// The duplicate create fails the transaction; the audit row must not
	// survive on its own.
	row := AuditRow{OpToken: "op-2", OpType: "vault.initialize", Verdict: "accepted", Slot: -1, Seq: 2}
	err := st.ApplyWithAudit(ctx,
		[]Effect{{Kind: EffectCreate, Address: rec.Address, Record: rec}}, 2, &row)
	require.Error(t, err)

	rows, err := st.ListAudit(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "failed batch must not leave an audit record")
}

func TestApplyWithAuditNoEffects(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	row := AuditRow{OpToken: "op-1", OpType: "vault.noop", Verdict: "accepted", Slot: -1, Seq: 1}
	require.NoError(t, st.ApplyWithAudit(ctx, nil, 1, &row))

	rows, err := st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "op-1", rows[0].OpToken)
}

func TestAuditTokenIsUnique(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	row := AuditRow{OpToken: "op-1", OpType: "vault.deposit", Verdict: "accepted", Slot: -1, Seq: 1}
	require.NoError(t, st.AppendAudit(ctx, row))
	assert.Error(t, st.AppendAudit(ctx, row))
}
