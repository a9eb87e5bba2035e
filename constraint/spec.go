// Package constraint declares and evaluates the ordered battery of trust
// checks every resource reference must pass before an operation's business
// logic may run.
package constraint

import (
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

// Kind names a constraint check.
type Kind string

const (
	KindCreate          Kind = "create"
	KindMutable         Kind = "mutable"
	KindEndorsement     Kind = "endorsement"
	KindDerivedAddress  Kind = "derived_address"
	KindRelationship    Kind = "relationship"
	KindController      Kind = "controller"
	KindFixedAddress    Kind = "fixed_address"
	KindCustomPredicate Kind = "custom_predicate"
	KindClose           Kind = "close"
)

// EvaluationOrder is the fixed order constraint kinds execute in, regardless
// of declaration order. The ordering is load-bearing: later checks (a custom
// predicate in particular) may assume the record's controller and type are
// already validated; running them earlier would let a predicate read fields
// it has no basis to trust yet.
var EvaluationOrder = [...]Kind{
	KindCreate,
	KindMutable,
	KindEndorsement,
	KindDerivedAddress,
	KindRelationship,
	KindController,
	KindFixedAddress,
	KindCustomPredicate,
	KindClose,
}

// SeedRef is one address-derivation seed: either a literal byte string or a
// reference to another slot's address. Slot is NoSlotRef for literals.
type SeedRef struct {
	Literal string
	Slot    int
}

// NoSlotRef marks a SeedRef as literal.
const NoSlotRef = -1

// Constraint is one declared check on a resource-reference slot.
// Only the parameter fields relevant to its Kind are set.
//
// ErrorKind optionally overrides the fault kind reported on failure.
// Structural kinds (create, mutable, fixed_address) have no dedicated entry
// in the fault taxonomy and default to CustomConstraintFailed with a stable
// code; a specification can override that when a more specific kind fits.
type Constraint struct {
	Kind Kind

	// Endorsement: a fixed identity, or the payload field of this slot
	// holding the identity (requires a verified type).
	Identity      record.Identity
	IdentityField string

	// DerivedAddress.
	Seeds      []SeedRef
	NonceField string
	Component  record.ComponentID // defaults to the record's controller

	// Relationship.
	OtherSlot int
	Field     string

	// FixedAddress.
	Address record.Address

	// CustomPredicate.
	Predicate string
	Code      string

	// Close.
	BeneficiarySlot int

	ErrorKind fault.Kind
}

// SlotSpec declares the checks for one resource-reference slot.
//
// A slot with an empty Type and zero constraints passes trivially: the
// engine never invents implicit checks. An un-annotated slot is therefore
// accepted with no validation at all, an authoring error the compiler warns
// about rather than a runtime concern.
type SlotSpec struct {
	Role        string
	Type        string // expected type name; "" skips the type tag check
	Constraints []Constraint
}

// Spec is the ordered constraint specification for one operation type.
type Spec struct {
	Operation string
	Slots     []SlotSpec
}

// ofKind returns the slot's constraints of one kind, in declaration order.
func (s SlotSpec) ofKind(k Kind) []Constraint {
	var out []Constraint
	for _, c := range s.Constraints {
		if c.Kind == k {
			out = append(out, c)
		}
	}
	return out
}

// hasKind reports whether the slot declares any constraint of the kind.
func (s SlotSpec) hasKind(k Kind) bool {
	for _, c := range s.Constraints {
		if c.Kind == k {
			return true
		}
	}
	return false
}
