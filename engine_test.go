package ledgergate_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate"
	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/constraint"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/internal/testutil"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/sequencer"
	"github.com/castkeep/ledgergate/store"
	"github.com/castkeep/ledgergate/typetag"
	"github.com/castkeep/ledgergate/vault"
)

// vaultEnv wires a live engine over one seeded owner account and its vault.
type vaultEnv struct {
	eng   *ledgergate.Engine
	st    *store.Store
	alice *testutil.Signer
	owner record.Address
	vault record.Address
}

func newVaultEnv(t *testing.T, vaultBalance, accountBalance uint64, opts ...ledgergate.Option) *vaultEnv {
	t.Helper()

	st := testutil.OpenStore(t)
	clock := ledgergate.NewClock()
	alice := testutil.NewEd25519Signer(t, "alice")
	owner := testutil.AccountAddress("alice")
	vaultAddr, bump, err := vault.DeriveAddress(owner)
	require.NoError(t, err)

	acctPayload, err := vault.Account{Authority: alice.Identity, Balance: accountBalance}.Encode()
	require.NoError(t, err)
	statePayload, err := vault.State{
		Authority:      alice.Identity,
		OwnerAccount:   owner,
		Bump:           bump,
		Balance:        vaultBalance,
		TotalDeposited: vaultBalance,
	}.Encode()
	require.NoError(t, err)
	testutil.SeedRecords(t, st, clock.Next(),
		&record.ResourceRecord{
			Address:    owner,
			Controller: vault.ComponentWallet,
			TypeTag:    typetag.TagFor(vault.TypeUserAccount),
			Payload:    acctPayload,
			Mutable:    true,
		},
		&record.ResourceRecord{
			Address:    vaultAddr,
			Controller: vault.ComponentVault,
			TypeTag:    typetag.TagFor(vault.TypeVaultState),
			Payload:    statePayload,
			Mutable:    true,
		},
	)

	specs, err := vault.Specs()
	require.NoError(t, err)
	registry := typetag.NewRegistry()
	require.NoError(t, vault.Register(registry))

	base := []ledgergate.Option{
		ledgergate.WithRegistry(registry),
		ledgergate.WithHandlers(vault.Handlers()),
		ledgergate.WithPredicates(vault.Predicates()),
		ledgergate.WithGuard(vault.ComponentTreasury),
		ledgergate.WithClock(clock),
		ledgergate.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	eng, err := ledgergate.New(st, specs, append(base, opts...)...)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()
	t.Cleanup(func() {
		eng.Close()
		require.NoError(t, <-done)
	})

	return &vaultEnv{eng: eng, st: st, alice: alice, owner: owner, vault: vaultAddr}
}

// request assembles an endorsed operation request against the env's vault.
func (e *vaultEnv) request(t *testing.T, op string, args map[string]any, twoSlot bool, endorsers ...*testutil.Signer) ledgergate.Request {
	t.Helper()

	slots := []ledgergate.SlotRef{{Address: e.vault, DeclaredRole: "vault"}}
	if twoSlot {
		slots = append(slots, ledgergate.SlotRef{Address: e.owner, DeclaredRole: "owner"})
	}
	payload, err := canon.Marshal(args)
	require.NoError(t, err)

	req := ledgergate.Request{OperationType: op, Slots: slots, Payload: payload}
	digest, err := req.Digest()
	require.NoError(t, err)
	for _, s := range endorsers {
		req.Endorsements = append(req.Endorsements, s.Endorse(digest))
	}
	return req
}

func (e *vaultEnv) vaultState(t *testing.T) vault.State {
	t.Helper()
	rec, err := e.st.GetRecord(context.Background(), e.vault)
	require.NoError(t, err)
	require.NotNil(t, rec)
	st, err := vault.DecodeState(rec)
	require.NoError(t, err)
	return st
}

func (e *vaultEnv) accountState(t *testing.T) vault.Account {
	t.Helper()
	rec, err := e.st.GetRecord(context.Background(), e.owner)
	require.NoError(t, err)
	require.NotNil(t, rec)
	acct, err := vault.DecodeAccount(rec)
	require.NoError(t, err)
	return acct
}

func TestEngineAppliesAcceptedDeposit(t *testing.T) {
	env := newVaultEnv(t, 100, 50)
	ctx := context.Background()

	resp, err := env.eng.Submit(ctx, env.request(t,
		"vault.deposit", map[string]any{"amount": 40}, true, env.alice))
	require.NoError(t, err)
	require.Equal(t, ledgergate.VerdictAccepted, resp.Verdict)
	assert.Len(t, resp.Effects, 2)
	for _, eff := range resp.Effects {
		assert.Equal(t, "update", eff.Kind)
	}

	st := env.vaultState(t)
	assert.Equal(t, uint64(140), st.Balance)
	assert.Equal(t, uint64(140), st.TotalDeposited)
	assert.Equal(t, uint64(10), env.accountState(t).Balance)

	trace, err := env.st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.Equal(t, "accepted", trace[0].Verdict)
	assert.Equal(t, "vault.deposit", trace[0].OpType)
	assert.Equal(t, int64(2), trace[0].Seq)
}

func TestEngineRejectionLeavesLedgerUntouched(t *testing.T) {
	env := newVaultEnv(t, 100, 50)
	ctx := context.Background()

	resp, err := env.eng.Submit(ctx, env.request(t,
		"vault.withdraw", map[string]any{"amount": 10}, true))
	require.NoError(t, err)
	require.Equal(t, ledgergate.VerdictRejected, resp.Verdict)
	assert.Equal(t, fault.MissingEndorsement, resp.ErrorKind)
	assert.Equal(t, 0, resp.Slot)
	assert.Empty(t, resp.Effects)

	assert.Equal(t, uint64(100), env.vaultState(t).Balance)
	assert.Equal(t, uint64(50), env.accountState(t).Balance)

	trace, err := env.st.ListAudit(ctx)
	require.NoError(t, err)
	require.Len(t, trace, 1)
	assert.Equal(t, "rejected", trace[0].Verdict)
	assert.Equal(t, string(fault.MissingEndorsement), trace[0].ErrorKind)
}

func TestEngineRejectsWrongDigestEndorsement(t *testing.T) {
	env := newVaultEnv(t, 100, 50)

	req := env.request(t, "vault.withdraw", map[string]any{"amount": 10}, true)
	digest, err := req.Digest()
	require.NoError(t, err)
	req.Endorsements = append(req.Endorsements, env.alice.EndorseWrongDigest(digest))

	resp, err := env.eng.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, ledgergate.VerdictRejected, resp.Verdict)
	assert.Equal(t, fault.MissingEndorsement, resp.ErrorKind)
}

func TestEngineUnknownOperationType(t *testing.T) {
	env := newVaultEnv(t, 100, 50)

	_, err := env.eng.Submit(context.Background(), env.request(t,
		"vault.explode", map[string]any{}, false))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operation type")
}

func TestEngineSlotCountMismatch(t *testing.T) {
	env := newVaultEnv(t, 100, 50)

	// Deposit declares two slots; submit only the vault.
	_, err := env.eng.Submit(context.Background(), env.request(t,
		"vault.deposit", map[string]any{"amount": 1}, false, env.alice))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slots")
}

func TestEngineSubmitAfterClose(t *testing.T) {
	env := newVaultEnv(t, 100, 50)
	env.eng.Close()

	_, err := env.eng.Submit(context.Background(), env.request(t,
		"vault.deposit", map[string]any{"amount": 1}, true, env.alice))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestEngineSerializesConcurrentSubmissions(t *testing.T) {
	env := newVaultEnv(t, 100, 100)
	ctx := context.Background()
	const n = 8

	depositReq := env.request(t, "vault.deposit", map[string]any{"amount": 1}, true, env.alice)
	withdrawReq := env.request(t, "vault.withdraw", map[string]any{"amount": 1}, true, env.alice)

	var wg sync.WaitGroup
	verdicts := make(chan ledgergate.Verdict, 2*n)
	for i := 0; i < n; i++ {
		for _, req := range []ledgergate.Request{depositReq, withdrawReq} {
			wg.Add(1)
			go func(req ledgergate.Request) {
				defer wg.Done()
				resp, err := env.eng.Submit(ctx, req)
				if assert.NoError(t, err) {
					verdicts <- resp.Verdict
				}
			}(req)
		}
	}
	wg.Wait()
	close(verdicts)

	for v := range verdicts {
		assert.Equal(t, ledgergate.VerdictAccepted, v)
	}

	// Every operation saw the state its predecessor committed, so the
	// matched deposits and withdrawals cancel exactly.
	st := env.vaultState(t)
	assert.Equal(t, uint64(100), st.Balance)
	assert.Equal(t, uint64(100+n), st.TotalDeposited)
	assert.Equal(t, uint64(n), st.TotalWithdrawn)
	assert.Equal(t, uint64(100), env.accountState(t).Balance)

	trace, err := env.st.ListAudit(ctx)
	require.NoError(t, err)
	assert.Len(t, trace, 2*n)
	for i := 1; i < len(trace); i++ {
		assert.Greater(t, trace[i].Seq, trace[i-1].Seq)
	}
}

// recordingInvoker captures dispatched invocations for assertions.
type recordingInvoker struct {
	mu    sync.Mutex
	calls []sequencer.Invocation
}

func (r *recordingInvoker) Invoke(_ context.Context, target record.ComponentID, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sequencer.Invocation{Target: target, Payload: payload})
	return nil
}

func TestEngineSweepDispatchesInvoker(t *testing.T) {
	inv := &recordingInvoker{}
	env := newVaultEnv(t, 100, 0, ledgergate.WithInvoker(inv))

	resp, err := env.eng.Submit(context.Background(), env.request(t,
		"vault.sweep", map[string]any{"amount": 25}, false, env.alice))
	require.NoError(t, err)
	require.Equal(t, ledgergate.VerdictAccepted, resp.Verdict)

	require.Len(t, inv.calls, 1)
	assert.Equal(t, vault.ComponentTreasury, inv.calls[0].Target)
	assert.Contains(t, string(inv.calls[0].Payload), env.vault.String())

	var invoked bool
	for _, eff := range resp.Effects {
		if eff.Kind == "invoke" {
			invoked = true
			assert.Equal(t, string(vault.ComponentTreasury), eff.Target)
		}
	}
	assert.True(t, invoked, "response must report the invocation")

	st := env.vaultState(t)
	assert.Equal(t, uint64(75), st.Balance)
	assert.Equal(t, uint64(25), st.TotalWithdrawn)
}

func TestNewValidatesWiring(t *testing.T) {
	st := testutil.OpenStore(t)
	specs, err := vault.Specs()
	require.NoError(t, err)
	registry := typetag.NewRegistry()
	require.NoError(t, vault.Register(registry))

	t.Run("missing handler", func(t *testing.T) {
		handlers := vault.Handlers()
		delete(handlers, "vault.sweep")
		_, err := ledgergate.New(st, specs,
			ledgergate.WithRegistry(registry),
			ledgergate.WithHandlers(handlers),
			ledgergate.WithPredicates(vault.Predicates()),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no registered handler")
	})

	t.Run("unregistered type", func(t *testing.T) {
		_, err := ledgergate.New(st, specs,
			ledgergate.WithRegistry(typetag.NewRegistry()),
			ledgergate.WithHandlers(vault.Handlers()),
			ledgergate.WithPredicates(vault.Predicates()),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not registered")
	})

	t.Run("unregistered predicate", func(t *testing.T) {
		_, err := ledgergate.New(st, specs,
			ledgergate.WithRegistry(registry),
			ledgergate.WithHandlers(vault.Handlers()),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "predicate")
	})

	// Hand-built specs bypass the CUE compiler; construction still checks
	// cross-slot references.
	t.Run("relationship slot out of range", func(t *testing.T) {
		bad := map[string]*constraint.Spec{
			"vault.freeze": {Operation: "vault.freeze", Slots: []constraint.SlotSpec{{
				Constraints: []constraint.Constraint{
					{Kind: constraint.KindRelationship, OtherSlot: 5, Field: "owner_account"},
				},
			}}},
		}
		_, err := ledgergate.New(st, bad,
			ledgergate.WithRegistry(registry),
			ledgergate.WithHandlers(vault.Handlers()),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "references slot 5")
	})

	t.Run("close beneficiary out of range", func(t *testing.T) {
		bad := map[string]*constraint.Spec{
			"vault.freeze": {Operation: "vault.freeze", Slots: []constraint.SlotSpec{{
				Constraints: []constraint.Constraint{
					{Kind: constraint.KindClose, BeneficiarySlot: 2},
				},
			}}},
		}
		_, err := ledgergate.New(st, bad,
			ledgergate.WithRegistry(registry),
			ledgergate.WithHandlers(vault.Handlers()),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close beneficiary references slot 2")
	})

	t.Run("seed slot out of range", func(t *testing.T) {
		bad := map[string]*constraint.Spec{
			"vault.freeze": {Operation: "vault.freeze", Slots: []constraint.SlotSpec{{
				Constraints: []constraint.Constraint{{
					Kind:       constraint.KindDerivedAddress,
					Seeds:      []constraint.SeedRef{{Literal: "vault", Slot: constraint.NoSlotRef}, {Slot: 9}},
					NonceField: "bump",
				}},
			}}},
		}
		_, err := ledgergate.New(st, bad,
			ledgergate.WithRegistry(registry),
			ledgergate.WithHandlers(vault.Handlers()),
		)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "seed references slot 9")
	})
}
