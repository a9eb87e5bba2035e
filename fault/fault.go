// Package fault defines the stable error taxonomy for the ledgergate engine.
//
// Every rejection an operation can produce is categorized by a Kind. Kinds
// are stable enumerated symbols: callers branch on Kind (via KindOf or Is),
// never on message text. Messages are for humans and may change between
// versions.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the category of an engine fault.
type Kind string

const (
	// MissingEndorsement indicates a required identity did not endorse the
	// request.
	MissingEndorsement Kind = "MISSING_ENDORSEMENT"

	// InvalidController indicates a record is controlled by an unexpected
	// component.
	InvalidController Kind = "INVALID_CONTROLLER"

	// InvalidDerivedAddress indicates a record's address does not match the
	// expected deterministic derivation.
	InvalidDerivedAddress Kind = "INVALID_DERIVED_ADDRESS"

	// RelationshipMismatch indicates a stored cross-record reference does not
	// point at the record it is required to.
	RelationshipMismatch Kind = "RELATIONSHIP_MISMATCH"

	// TypeTagMismatch indicates a record of one logical type was presented
	// where another type is expected.
	TypeTagMismatch Kind = "TYPE_TAG_MISMATCH"

	// ArithmeticOverflow indicates a checked add or multiply would wrap.
	ArithmeticOverflow Kind = "ARITHMETIC_OVERFLOW"

	// ArithmeticUnderflow indicates a checked subtract would wrap below zero.
	ArithmeticUnderflow Kind = "ARITHMETIC_UNDERFLOW"

	// DivisionByZero indicates a checked divide with a zero divisor.
	DivisionByZero Kind = "DIVISION_BY_ZERO"

	// UnauthorizedInvocationTarget indicates an external invocation target is
	// not on the configured whitelist.
	UnauthorizedInvocationTarget Kind = "UNAUTHORIZED_INVOCATION_TARGET"

	// SequencingViolation indicates an external invocation was attempted
	// before local state was committed, or a handle was committed twice.
	// Always a caller bug, never retryable.
	SequencingViolation Kind = "SEQUENCING_VIOLATION"

	// DerivationExhausted indicates no usable nonce exists in the address
	// derivation search space. Always a specification bug, never retryable.
	DerivationExhausted Kind = "DERIVATION_EXHAUSTED"

	// CustomConstraintFailed indicates a caller-registered predicate or a
	// structural constraint (existence, mutability, fixed address) rejected
	// the operation. The Code field carries the specific reason.
	CustomConstraintFailed Kind = "CUSTOM_CONSTRAINT_FAILED"
)

// NoSlot is the Slot value for faults that are not scoped to a particular
// resource-reference slot.
const NoSlot = -1

// Error is the engine's structured fault type.
//
// Kind is the stable category. Slot is the index of the offending
// resource-reference slot, or NoSlot. Code further qualifies
// CustomConstraintFailed faults.
type Error struct {
	Kind    Kind
	Slot    int
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Slot != NoSlot && e.Code != "":
		return fmt.Sprintf("%s: %s (slot=%d, code=%s)", e.Kind, e.Message, e.Slot, e.Code)
	case e.Slot != NoSlot:
		return fmt.Sprintf("%s: %s (slot=%d)", e.Kind, e.Message, e.Slot)
	case e.Code != "":
		return fmt.Sprintf("%s: %s (code=%s)", e.Kind, e.Message, e.Code)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap exposes the underlying cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Terminal reports whether the fault indicates a caller or specification bug
// that must not be retried even with different input data.
func (e *Error) Terminal() bool {
	return e.Kind == DerivationExhausted || e.Kind == SequencingViolation
}

// New creates a fault with no slot attribution.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Slot: NoSlot, Message: fmt.Sprintf(format, args...)}
}

// Coded creates a CustomConstraintFailed fault carrying a stable code.
func Coded(code, format string, args ...any) *Error {
	return &Error{
		Kind:    CustomConstraintFailed,
		Slot:    NoSlot,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a fault that preserves an underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Slot: NoSlot, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// AtSlot returns a copy of err attributed to the given slot index.
// Non-fault errors are wrapped as CustomConstraintFailed.
func AtSlot(err error, slot int) *Error {
	var e *Error
	if errors.As(err, &e) {
		dup := *e
		dup.Slot = slot
		return &dup
	}
	return &Error{
		Kind:    CustomConstraintFailed,
		Slot:    slot,
		Message: err.Error(),
		Cause:   err,
	}
}

// KindOf returns the Kind of err, or "" if err is not a fault.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err is (or wraps) a fault of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// SlotOf returns the slot index of err, or NoSlot if err is not a fault or
// carries no slot attribution.
func SlotOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Slot
	}
	return NoSlot
}
