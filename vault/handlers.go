package vault

import (
	"context"
	"fmt"

	"github.com/castkeep/ledgergate"
	"github.com/castkeep/ledgergate/addr"
	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/safemath"
)

// Handlers returns the business logic for every vault operation type.
func Handlers() map[string]ledgergate.Handler {
	return map[string]ledgergate.Handler{
		"vault.initialize":    initialize,
		"vault.deposit":       deposit,
		"vault.withdraw":      withdraw,
		"vault.set_authority": setAuthority,
		"vault.freeze":        freeze,
		"vault.close":         closeVault,
		"vault.sweep":         sweep,
	}
}

// initialize creates a vault at the address derived from its owner account.
//
// The bump arrives as a request argument and is verified against the
// canonical derivation, never trusted: an attacker-chosen bump that does not
// reproduce the slot address is rejected as an invalid derived address.
func initialize(_ context.Context, op *ledgergate.Op) error {
	authority, err := op.ArgString("authority")
	if err != nil {
		return err
	}
	bump, err := op.ArgUint("bump")
	if err != nil {
		return err
	}
	if bump > 255 {
		return fmt.Errorf("argument %q out of range: %d", "bump", bump)
	}

	owner := op.Address(1)
	if !addr.Verify(op.Address(0), SeedsFor(owner), uint8(bump), ComponentVault) {
		return fault.AtSlot(fault.New(fault.InvalidDerivedAddress,
			"vault address does not match derivation for the supplied bump"), 0)
	}

	st := State{
		Authority:    record.Identity(authority),
		OwnerAccount: owner,
		Bump:         uint8(bump),
	}
	payload, err := st.Encode()
	if err != nil {
		return err
	}
	return op.StageCreate(0, TypeVaultState, ComponentVault, payload, true)
}

// deposit moves funds from the owner account into the vault.
func deposit(_ context.Context, op *ledgergate.Op) error {
	amount, err := op.ArgUint("amount")
	if err != nil {
		return err
	}

	st, err := DecodeState(op.Record(0))
	if err != nil {
		return err
	}
	acct, err := DecodeAccount(op.Record(1))
	if err != nil {
		return err
	}

	if acct.Balance, err = safemath.Sub(acct.Balance, amount); err != nil {
		return fault.AtSlot(err, 1)
	}
	if st.Balance, err = safemath.Add(st.Balance, amount); err != nil {
		return fault.AtSlot(err, 0)
	}
	if st.TotalDeposited, err = safemath.Add(st.TotalDeposited, amount); err != nil {
		return fault.AtSlot(err, 0)
	}

	return stagePair(op, st, acct)
}

// withdraw moves funds from the vault back to the owner account.
func withdraw(_ context.Context, op *ledgergate.Op) error {
	amount, err := op.ArgUint("amount")
	if err != nil {
		return err
	}

	st, err := DecodeState(op.Record(0))
	if err != nil {
		return err
	}
	acct, err := DecodeAccount(op.Record(1))
	if err != nil {
		return err
	}

	if st.Balance, err = safemath.Sub(st.Balance, amount); err != nil {
		return fault.AtSlot(err, 0)
	}
	if st.TotalWithdrawn, err = safemath.Add(st.TotalWithdrawn, amount); err != nil {
		return fault.AtSlot(err, 0)
	}
	if acct.Balance, err = safemath.Add(acct.Balance, amount); err != nil {
		return fault.AtSlot(err, 1)
	}

	return stagePair(op, st, acct)
}

// setAuthority hands control of the vault to a new authority identity.
func setAuthority(_ context.Context, op *ledgergate.Op) error {
	next, err := op.ArgString("new_authority")
	if err != nil {
		return err
	}
	if _, err := record.Identity(next).KeyBytes(); err != nil {
		return fmt.Errorf("argument %q: %w", "new_authority", err)
	}

	st, err := DecodeState(op.Record(0))
	if err != nil {
		return err
	}
	st.Authority = record.Identity(next)
	return stageVault(op, st)
}

// freeze marks the vault frozen, blocking withdrawals until a future
// operation clears the flag.
func freeze(_ context.Context, op *ledgergate.Op) error {
	st, err := DecodeState(op.Record(0))
	if err != nil {
		return err
	}
	st.Frozen = true
	return stageVault(op, st)
}

// closeVault credits the remaining balance to the beneficiary declared by
// the close directive, then retires the vault record.
func closeVault(_ context.Context, op *ledgergate.Op) error {
	st, err := DecodeState(op.Record(0))
	if err != nil {
		return err
	}

	for _, d := range op.Outcome.Closes {
		acct, err := DecodeAccount(op.Record(d.BeneficiarySlot))
		if err != nil {
			return err
		}
		if acct.Balance, err = safemath.Add(acct.Balance, st.Balance); err != nil {
			return fault.AtSlot(err, d.BeneficiarySlot)
		}
		payload, err := acct.Encode()
		if err != nil {
			return err
		}
		rec := op.Record(d.BeneficiarySlot).Clone()
		rec.Payload = payload
		op.StageUpdate(rec)
		op.StageClose(op.Address(d.Slot))
	}
	return nil
}

// sweep debits the vault and notifies the treasury component. The debit
// commits before the invocation is dispatched, so the treasury observes the
// post-sweep ledger.
func sweep(ctx context.Context, op *ledgergate.Op) error {
	amount, err := op.ArgUint("amount")
	if err != nil {
		return err
	}

	st, err := DecodeState(op.Record(0))
	if err != nil {
		return err
	}
	if st.Balance, err = safemath.Sub(st.Balance, amount); err != nil {
		return fault.AtSlot(err, 0)
	}
	if st.TotalWithdrawn, err = safemath.Add(st.TotalWithdrawn, amount); err != nil {
		return fault.AtSlot(err, 0)
	}
	if err := stageVault(op, st); err != nil {
		return err
	}

	if err := op.Commit(ctx); err != nil {
		return err
	}

	notice, err := canon.Marshal(map[string]any{
		"vault":  op.Address(0).String(),
		"amount": amount,
	})
	if err != nil {
		return err
	}
	return op.InvokeExternal(ctx, ComponentTreasury, notice)
}

// stageVault stages a payload rewrite of the vault record in slot 0.
func stageVault(op *ledgergate.Op, st State) error {
	payload, err := st.Encode()
	if err != nil {
		return err
	}
	rec := op.Record(0).Clone()
	rec.Payload = payload
	op.StageUpdate(rec)
	return nil
}

// stagePair stages the vault in slot 0 and the owner account in slot 1.
func stagePair(op *ledgergate.Op, st State, acct Account) error {
	if err := stageVault(op, st); err != nil {
		return err
	}
	payload, err := acct.Encode()
	if err != nil {
		return err
	}
	rec := op.Record(1).Clone()
	rec.Payload = payload
	op.StageUpdate(rec)
	return nil
}
