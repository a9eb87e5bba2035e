package constraint

import (
	"fmt"

	"github.com/castkeep/ledgergate/addr"
	"github.com/castkeep/ledgergate/authz"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
	"github.com/castkeep/ledgergate/typetag"
)

// Stable codes for structural rejections reported as CustomConstraintFailed.
const (
	CodeRecordExists     = "record_exists"
	CodeRecordMissing    = "record_missing"
	CodeRecordImmutable  = "record_immutable"
	CodeAddressMismatch  = "address_mismatch"
	CodeUnknownPredicate = "unknown_predicate"
)

// SlotState is one resource-reference slot as seen by the evaluation
// snapshot. Record is nil when no record exists at the address.
type SlotState struct {
	Address record.Address
	Record  *record.ResourceRecord
}

// Predicate is a caller-registered check. It runs last in the battery for
// its slot, after controller and type validation, so it may trust the
// record's fields.
type Predicate func(rec *record.ResourceRecord, slots []SlotState) error

// Input is everything one evaluation needs. All checks are pure functions
// of this snapshot; nothing is re-read mid-evaluation.
type Input struct {
	Spec       *Spec
	Slots      []SlotState
	Authz      *authz.Context
	Registry   *typetag.Registry
	Predicates map[string]Predicate
}

// State tracks evaluation progress.
type State int

const (
	StatePending State = iota
	StateEvaluating
	StateAccepted
	StateRejected
)

// CloseDirective marks a slot's record for closure with its balance credited
// to the beneficiary slot. The handler applies it after evaluation accepts.
type CloseDirective struct {
	Slot            int
	BeneficiarySlot int
}

// Outcome is what an accepted evaluation hands to business logic: which
// slots are to be created and which closed.
type Outcome struct {
	Creates []int
	Closes  []CloseDirective
}

// Evaluator runs the constraint battery for one operation.
//
// Transition rule: for each slot left to right, and for each kind in
// EvaluationOrder, evaluate every declared constraint of that kind; the
// first failure anywhere rejects the whole evaluation and nothing further
// is evaluated.
type Evaluator struct {
	in    Input
	state State
	slot  int
	kind  Kind
	err   *fault.Error
	out   Outcome
}

// NewEvaluator creates an evaluator in StatePending.
func NewEvaluator(in Input) *Evaluator {
	return &Evaluator{in: in, state: StatePending}
}

// State returns the current evaluation state.
func (e *Evaluator) State() State { return e.state }

// Rejection returns the fault that rejected the evaluation, or nil.
func (e *Evaluator) Rejection() *fault.Error { return e.err }

// Evaluate is the convenience form of NewEvaluator(in).Run().
func Evaluate(in Input) (*Outcome, error) {
	return NewEvaluator(in).Run()
}

// Run executes the battery. On rejection the returned error is a *fault.Error
// carrying the kind and the offending slot index.
func (e *Evaluator) Run() (*Outcome, error) {
	if e.state != StatePending {
		return nil, fmt.Errorf("evaluator already ran")
	}
	if len(e.in.Slots) != len(e.in.Spec.Slots) {
		return nil, fmt.Errorf("operation %s: got %d slots, spec declares %d",
			e.in.Spec.Operation, len(e.in.Slots), len(e.in.Spec.Slots))
	}

	e.state = StateEvaluating
	for i := range e.in.Spec.Slots {
		e.slot = i
		for _, kind := range EvaluationOrder {
			e.kind = kind
			if err := e.evalKind(i, kind); err != nil {
				e.err = fault.AtSlot(err, i)
				e.state = StateRejected
				return nil, e.err
			}
			// The type tag gate runs directly after the creation check, so
			// every later constraint that interprets payload fields sees a
			// verified type.
			if kind == KindCreate {
				if err := e.checkTypeTag(i); err != nil {
					e.err = fault.AtSlot(err, i)
					e.state = StateRejected
					return nil, e.err
				}
			}
		}
	}

	e.state = StateAccepted
	return &e.out, nil
}

// evalKind evaluates every declared constraint of one kind on one slot, in
// declaration order.
func (e *Evaluator) evalKind(slot int, kind Kind) error {
	for _, c := range e.in.Spec.Slots[slot].ofKind(kind) {
		if err := e.evalConstraint(slot, c); err != nil {
			return overrideKind(err, c.ErrorKind)
		}
	}
	return nil
}

func (e *Evaluator) evalConstraint(slot int, c Constraint) error {
	ss := e.in.Slots[slot]

	switch c.Kind {
	case KindCreate:
		if ss.Record != nil {
			return fault.Coded(CodeRecordExists, "slot %d: record %s already exists", slot, ss.Address)
		}
		e.out.Creates = append(e.out.Creates, slot)
		return nil

	case KindMutable:
		rec, err := e.requireRecord(slot)
		if err != nil {
			return err
		}
		if !rec.Mutable {
			return fault.Coded(CodeRecordImmutable, "record %s is not mutable", ss.Address)
		}
		return nil

	case KindEndorsement:
		identity := c.Identity
		if identity == "" {
			rec, err := e.requireRecord(slot)
			if err != nil {
				return err
			}
			field, err := rec.FieldString(c.IdentityField)
			if err != nil {
				return fault.Wrap(fault.MissingEndorsement, err,
					"record %s: cannot resolve endorsing identity from field %q", ss.Address, c.IdentityField)
			}
			identity = record.Identity(field)
		}
		return authz.RequireEndorsement(e.in.Authz, identity)

	case KindDerivedAddress:
		rec, err := e.requireRecord(slot)
		if err != nil {
			return err
		}
		nonce, err := rec.FieldUint(c.NonceField)
		if err != nil {
			return fault.Wrap(fault.InvalidDerivedAddress, err,
				"record %s: cannot resolve nonce from field %q", ss.Address, c.NonceField)
		}
		if nonce > 255 {
			return fault.New(fault.InvalidDerivedAddress,
				"record %s: stored nonce %d out of range", ss.Address, nonce)
		}
		component := c.Component
		if component == "" {
			component = rec.Controller
		}
		seeds, err := e.resolveSeeds(c.Seeds)
		if err != nil {
			return fault.Wrap(fault.InvalidDerivedAddress, err, "record %s: bad seed reference", ss.Address)
		}
		if !addr.Verify(ss.Address, seeds, uint8(nonce), component) {
			return fault.New(fault.InvalidDerivedAddress,
				"record %s does not derive from its declared seeds", ss.Address)
		}
		return nil

	case KindRelationship:
		rec, err := e.requireRecord(slot)
		if err != nil {
			return err
		}
		if c.OtherSlot < 0 || c.OtherSlot >= len(e.in.Slots) {
			return fault.New(fault.RelationshipMismatch,
				"record %s: relationship references slot %d of %d", ss.Address, c.OtherSlot, len(e.in.Slots))
		}
		other := e.in.Slots[c.OtherSlot]
		got, err := rec.FieldString(c.Field)
		if err != nil {
			return fault.Wrap(fault.RelationshipMismatch, err,
				"record %s: cannot resolve relationship field %q", ss.Address, c.Field)
		}
		if got != other.Address.String() {
			return fault.New(fault.RelationshipMismatch,
				"record %s field %q references %s, want slot %d (%s)",
				ss.Address, c.Field, got, c.OtherSlot, other.Address)
		}
		return nil

	case KindController:
		rec, err := e.requireRecord(slot)
		if err != nil {
			return err
		}
		return authz.RequireController(rec, c.Component)

	case KindFixedAddress:
		if ss.Address != c.Address {
			return fault.Coded(CodeAddressMismatch,
				"slot %d holds %s, want fixed address %s", slot, ss.Address, c.Address)
		}
		return nil

	case KindCustomPredicate:
		rec, err := e.requireRecord(slot)
		if err != nil {
			return err
		}
		p, ok := e.in.Predicates[c.Predicate]
		if !ok {
			return fault.Coded(CodeUnknownPredicate, "predicate %q is not registered", c.Predicate)
		}
		if err := p(rec, e.in.Slots); err != nil {
			code := c.Code
			if code == "" {
				code = c.Predicate
			}
			return &fault.Error{
				Kind:    fault.CustomConstraintFailed,
				Slot:    fault.NoSlot,
				Code:    code,
				Message: err.Error(),
				Cause:   err,
			}
		}
		return nil

	case KindClose:
		if _, err := e.requireRecord(slot); err != nil {
			return err
		}
		if c.BeneficiarySlot < 0 || c.BeneficiarySlot >= len(e.in.Slots) {
			return fmt.Errorf("close beneficiary references slot %d of %d", c.BeneficiarySlot, len(e.in.Slots))
		}
		e.out.Closes = append(e.out.Closes, CloseDirective{Slot: slot, BeneficiarySlot: c.BeneficiarySlot})
		return nil

	default:
		return fmt.Errorf("unknown constraint kind %q", c.Kind)
	}
}

// checkTypeTag gates payload interpretation for a slot that declares an
// expected type. Slots being created skip the check: the tag is assigned by
// the creation effect itself.
func (e *Evaluator) checkTypeTag(slot int) error {
	spec := e.in.Spec.Slots[slot]
	if spec.Type == "" {
		return nil
	}
	ss := e.in.Slots[slot]
	if ss.Record == nil {
		if spec.hasKind(KindCreate) {
			return nil
		}
		return fault.Coded(CodeRecordMissing, "slot %d: no record at %s", slot, ss.Address)
	}
	return e.in.Registry.Verify(ss.Record, spec.Type)
}

// requireRecord resolves the slot's record, rejecting absent records with a
// stable code.
func (e *Evaluator) requireRecord(slot int) (*record.ResourceRecord, error) {
	ss := e.in.Slots[slot]
	if ss.Record == nil {
		return nil, fault.Coded(CodeRecordMissing, "slot %d: no record at %s", slot, ss.Address)
	}
	return ss.Record, nil
}

// resolveSeeds materializes seed references against the slot snapshot.
func (e *Evaluator) resolveSeeds(refs []SeedRef) ([][]byte, error) {
	seeds := make([][]byte, len(refs))
	for i, ref := range refs {
		if ref.Slot == NoSlotRef {
			seeds[i] = []byte(ref.Literal)
			continue
		}
		if ref.Slot < 0 || ref.Slot >= len(e.in.Slots) {
			return nil, fmt.Errorf("seed[%d] references slot %d of %d", i, ref.Slot, len(e.in.Slots))
		}
		a := e.in.Slots[ref.Slot].Address
		seeds[i] = a[:]
	}
	return seeds, nil
}

// overrideKind applies a specification-declared error kind to a rejection.
func overrideKind(err error, kind fault.Kind) error {
	if kind == "" {
		return err
	}
	f := fault.AtSlot(err, fault.SlotOf(err))
	f.Kind = kind
	return f
}
