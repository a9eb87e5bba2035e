// Package vault is the reference business component hosted on the engine:
// derived-address vaults holding balances owned by user accounts.
//
// It exercises every constraint kind the engine evaluates and routes all
// balance arithmetic through the checked operations. Hosting systems can use
// it as a template for their own components.
package vault

import (
	_ "embed"
	"fmt"

	"github.com/castkeep/ledgergate/addr"
	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/compiler"
	"github.com/castkeep/ledgergate/constraint"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/typetag"
)

// Component identities used by the vault specifications.
const (
	// ComponentVault controls VaultState records.
	ComponentVault = record.ComponentID("component.vault")
	// ComponentWallet controls UserAccount records.
	ComponentWallet = record.ComponentID("component.wallet")
	// ComponentTreasury receives post-commit sweep invocations.
	ComponentTreasury = record.ComponentID("component.treasury")
)

// Type names registered for the vault's records.
const (
	TypeVaultState  = "VaultState"
	TypeUserAccount = "UserAccount"
)

//go:embed specs/vault.cue
var specCUE []byte

// Specs compiles the embedded constraint specifications.
func Specs() (map[string]*constraint.Spec, error) {
	return compiler.CompileBytes("vault.cue", specCUE)
}

// Register adds the vault's type names to the registry.
func Register(reg *typetag.Registry) error {
	for _, name := range []string{TypeVaultState, TypeUserAccount} {
		if _, err := reg.Register(name); err != nil {
			return err
		}
	}
	return nil
}

// SeedsFor returns the derivation seeds of the vault belonging to an owner
// account.
func SeedsFor(owner record.Address) [][]byte {
	return [][]byte{[]byte("vault"), owner[:]}
}

// DeriveAddress computes the vault address and bump for an owner account.
func DeriveAddress(owner record.Address) (record.Address, uint8, error) {
	return addr.Derive(SeedsFor(owner), ComponentVault)
}

// State is the decoded VaultState payload.
type State struct {
	Authority      record.Identity
	OwnerAccount   record.Address
	Bump           uint8
	Balance        uint64
	TotalDeposited uint64
	TotalWithdrawn uint64
	Frozen         bool
}

// Encode serializes the state as a canonical-JSON payload, so equal states
// always produce identical record bytes.
func (s State) Encode() ([]byte, error) {
	return canon.Marshal(map[string]any{
		"authority":       string(s.Authority),
		"owner_account":   s.OwnerAccount.String(),
		"bump":            uint64(s.Bump),
		"balance":         s.Balance,
		"total_deposited": s.TotalDeposited,
		"total_withdrawn": s.TotalWithdrawn,
		"frozen":          s.Frozen,
	})
}

// DecodeState reads a VaultState payload. Callers must have passed the type
// tag gate already; the engine guarantees that for constraint-checked slots.
func DecodeState(rec *record.ResourceRecord) (State, error) {
	var s State

	authority, err := rec.FieldString("authority")
	if err != nil {
		return s, err
	}
	s.Authority = record.Identity(authority)

	ownerHex, err := rec.FieldString("owner_account")
	if err != nil {
		return s, err
	}
	if s.OwnerAccount, err = record.ParseAddress(ownerHex); err != nil {
		return s, err
	}

	bump, err := rec.FieldUint("bump")
	if err != nil {
		return s, err
	}
	if bump > 255 {
		return s, fmt.Errorf("bump %d out of range", bump)
	}
	s.Bump = uint8(bump)

	if s.Balance, err = rec.FieldUint("balance"); err != nil {
		return s, err
	}
	if s.TotalDeposited, err = rec.FieldUint("total_deposited"); err != nil {
		return s, err
	}
	if s.TotalWithdrawn, err = rec.FieldUint("total_withdrawn"); err != nil {
		return s, err
	}

	fields, err := rec.Fields()
	if err != nil {
		return s, err
	}
	frozen, ok := fields["frozen"].(bool)
	if !ok {
		return s, fmt.Errorf("payload field %q missing or not a bool", "frozen")
	}
	s.Frozen = frozen

	return s, nil
}

// Account is the decoded UserAccount payload.
type Account struct {
	Authority record.Identity
	Balance   uint64
}

// Encode serializes the account as a canonical-JSON payload.
func (a Account) Encode() ([]byte, error) {
	return canon.Marshal(map[string]any{
		"authority": string(a.Authority),
		"balance":   a.Balance,
	})
}

// DecodeAccount reads a UserAccount payload.
func DecodeAccount(rec *record.ResourceRecord) (Account, error) {
	var a Account

	authority, err := rec.FieldString("authority")
	if err != nil {
		return a, err
	}
	a.Authority = record.Identity(authority)

	if a.Balance, err = rec.FieldUint("balance"); err != nil {
		return a, err
	}
	return a, nil
}

// Predicates returns the named predicates the vault specifications
// reference.
func Predicates() map[string]constraint.Predicate {
	return map[string]constraint.Predicate{
		"vault.not_frozen": notFrozen,
	}
}

// notFrozen rejects operations against a frozen vault. It runs after the
// controller and type checks, so the frozen field is trustworthy.
func notFrozen(rec *record.ResourceRecord, _ []constraint.SlotState) error {
	st, err := DecodeState(rec)
	if err != nil {
		return err
	}
	if st.Frozen {
		return fmt.Errorf("vault %s is frozen", rec.Address)
	}
	return nil
}
