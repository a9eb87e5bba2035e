// Package harness executes declarative vault scenarios against a fully wired
// engine and snapshots the resulting audit trace for golden comparison.
//
// Every run is deterministic: an in-memory ledger, identities derived from
// account names, fixed operation tokens, and a logical clock shared between
// setup and the engine. The same scenario always produces a byte-identical
// trace, so golden files can be written by hand.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/castkeep/ledgergate"
	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/internal/testutil"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/store"
	"github.com/castkeep/ledgergate/typetag"
	"github.com/castkeep/ledgergate/vault"
)

// twoSlotOps carry the owner account in slot 1 alongside the vault.
var twoSlotOps = map[string]bool{
	"vault.initialize": true,
	"vault.deposit":    true,
	"vault.withdraw":   true,
	"vault.close":      true,
}

// RunResult is the observable outcome of a scenario run. Store stays open
// until test cleanup so assertions can inspect final ledger state.
type RunResult struct {
	Responses []ledgergate.Response
	Trace     []store.AuditRow
	Store     *store.Store
}

// Run seeds the scenario's ledger state, submits every step to a live
// engine, asserts each step's expected verdict, and returns the responses
// plus the final audit trace.
func Run(t *testing.T, sc *Scenario) *RunResult {
	t.Helper()
	ctx := context.Background()

	st := testutil.OpenStore(t)
	clock := ledgergate.NewClock()

	signers := make(map[string]*testutil.Signer)
	signerFor := func(name string) *testutil.Signer {
		if s, ok := signers[name]; ok {
			return s
		}
		s := testutil.NewEd25519Signer(t, name)
		signers[name] = s
		return s
	}

	seedLedger(t, st, sc, clock, signerFor)

	specs, err := vault.Specs()
	require.NoError(t, err)
	registry := typetag.NewRegistry()
	require.NoError(t, vault.Register(registry))

	tokens := make([]string, len(sc.Steps))
	for i := range sc.Steps {
		tokens[i] = fmt.Sprintf("op-%04d", i+1)
	}

	eng, err := ledgergate.New(st, specs,
		ledgergate.WithRegistry(registry),
		ledgergate.WithHandlers(vault.Handlers()),
		ledgergate.WithPredicates(vault.Predicates()),
		ledgergate.WithGuard(vault.ComponentTreasury),
		ledgergate.WithTokenGenerator(ledgergate.NewFixedGenerator(tokens...)),
		ledgergate.WithClock(clock),
		ledgergate.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	result := &RunResult{Store: st}
	for i, step := range sc.Steps {
		resp, err := submitStep(ctx, t, eng, step, signerFor)
		require.NoError(t, err, "step %d (%s)", i, step.Op)
		assertExpect(t, i, step, resp)
		result.Responses = append(result.Responses, resp)
	}

	eng.Close()
	require.NoError(t, <-done)

	result.Trace, err = st.ListAudit(ctx)
	require.NoError(t, err)
	return result
}

// seedLedger writes the scenario's accounts and vaults directly, consuming
// one clock tick so step sequence numbers start at 2.
func seedLedger(t *testing.T, st *store.Store, sc *Scenario, clock *ledgergate.Clock, signerFor func(string) *testutil.Signer) {
	t.Helper()

	var recs []*record.ResourceRecord
	for _, a := range sc.Accounts {
		payload, err := vault.Account{
			Authority: signerFor(a.Name).Identity,
			Balance:   a.Balance,
		}.Encode()
		require.NoError(t, err)
		recs = append(recs, &record.ResourceRecord{
			Address:    testutil.AccountAddress(a.Name),
			Controller: vault.ComponentWallet,
			TypeTag:    typetag.TagFor(vault.TypeUserAccount),
			Payload:    payload,
			Mutable:    true,
		})
	}
	for _, v := range sc.Vaults {
		owner := testutil.AccountAddress(v.Owner)
		address, bump, err := vault.DeriveAddress(owner)
		require.NoError(t, err)
		payload, err := vault.State{
			Authority:      signerFor(v.Owner).Identity,
			OwnerAccount:   owner,
			Bump:           bump,
			Balance:        v.Balance,
			TotalDeposited: v.Balance,
			Frozen:         v.Frozen,
		}.Encode()
		require.NoError(t, err)
		recs = append(recs, &record.ResourceRecord{
			Address:    address,
			Controller: vault.ComponentVault,
			TypeTag:    typetag.TagFor(vault.TypeVaultState),
			Payload:    payload,
			Mutable:    true,
		})
	}
	testutil.SeedRecords(t, st, clock.Next(), recs...)
}

// submitStep assembles the step's request, endorses its digest, and submits.
func submitStep(ctx context.Context, t *testing.T, eng *ledgergate.Engine, step Step, signerFor func(string) *testutil.Signer) (ledgergate.Response, error) {
	t.Helper()

	ownerName := step.Owner
	if ownerName == "" {
		ownerName = step.Vault
	}
	ownerAddr := testutil.AccountAddress(step.Vault)
	vaultAddr, bump, err := vault.DeriveAddress(ownerAddr)
	require.NoError(t, err)

	slots := []ledgergate.SlotRef{{Address: vaultAddr, DeclaredRole: "vault"}}
	if twoSlotOps[step.Op] {
		slots = append(slots, ledgergate.SlotRef{
			Address:      testutil.AccountAddress(ownerName),
			DeclaredRole: "owner",
		})
	}

	args := make(map[string]any, len(step.Args))
	for k, v := range step.Args {
		args[k] = v
	}
	if step.Op == "vault.initialize" {
		if _, ok := args["authority"]; !ok {
			args["authority"] = string(signerFor(step.Vault).Identity)
		}
		if _, ok := args["bump"]; !ok {
			args["bump"] = uint64(bump)
		}
	}
	payload, err := canon.Marshal(args)
	require.NoError(t, err)

	req := ledgergate.Request{
		OperationType: step.Op,
		Slots:         slots,
		Payload:       payload,
	}
	digest, err := req.Digest()
	require.NoError(t, err)
	for _, name := range step.Endorsers {
		req.Endorsements = append(req.Endorsements, signerFor(name).Endorse(digest))
	}

	return eng.Submit(ctx, req)
}

// assertExpect checks a step's response against its expect clause.
func assertExpect(t *testing.T, i int, step Step, resp ledgergate.Response) {
	t.Helper()

	want := step.Expect.Verdict
	if want == "" {
		want = string(ledgergate.VerdictAccepted)
	}
	require.Equal(t, want, string(resp.Verdict), "step %d (%s) verdict", i, step.Op)

	if step.Expect.ErrorKind != "" {
		require.Equal(t, step.Expect.ErrorKind, string(resp.ErrorKind), "step %d (%s) error kind", i, step.Op)
	}
	if step.Expect.Slot != nil {
		require.Equal(t, *step.Expect.Slot, resp.Slot, "step %d (%s) slot", i, step.Op)
	}
	if step.Expect.Code != "" {
		require.Equal(t, step.Expect.Code, resp.Code, "step %d (%s) code", i, step.Op)
	}
}
