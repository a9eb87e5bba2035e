package compiler

import (
	"fmt"
	"strings"

	"github.com/castkeep/ledgergate/constraint"
	"github.com/castkeep/ledgergate/fault"
)

// Validation error codes (E200-E299)
const (
	ErrUnknownKind        = "E200" // unknown constraint kind
	ErrMissingParameter   = "E201" // required parameter absent
	ErrBadSlotReference   = "E202" // slot reference out of range
	ErrDuplicateOperation = "E203" // operation declared more than once
	ErrUnknownErrorKind   = "E204" // error_kind not in the fault taxonomy
	ErrConflictingParams  = "E205" // mutually exclusive parameters both set
)

// ValidationError reports one specification defect.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Errors aggregates validation errors from one compile pass.
type Errors []ValidationError

// Error implements the error interface.
func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

var knownErrorKinds = map[fault.Kind]bool{
	fault.MissingEndorsement:           true,
	fault.InvalidController:            true,
	fault.InvalidDerivedAddress:        true,
	fault.RelationshipMismatch:         true,
	fault.TypeTagMismatch:              true,
	fault.ArithmeticOverflow:           true,
	fault.ArithmeticUnderflow:          true,
	fault.DivisionByZero:               true,
	fault.UnauthorizedInvocationTarget: true,
	fault.SequencingViolation:          true,
	fault.DerivationExhausted:          true,
	fault.CustomConstraintFailed:       true,
}

var knownKinds = map[constraint.Kind]bool{
	constraint.KindCreate:          true,
	constraint.KindMutable:         true,
	constraint.KindEndorsement:     true,
	constraint.KindDerivedAddress:  true,
	constraint.KindRelationship:    true,
	constraint.KindController:      true,
	constraint.KindFixedAddress:    true,
	constraint.KindCustomPredicate: true,
	constraint.KindClose:           true,
}

// Validate checks a compiled specification against schema rules.
// Returns all defects found, not just the first.
func Validate(spec *constraint.Spec) []ValidationError {
	var errs []ValidationError
	add := func(slot, idx int, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   fmt.Sprintf("%s.slots[%d].constraints[%d]", spec.Operation, slot, idx),
			Message: fmt.Sprintf(format, args...),
			Code:    code,
		})
	}

	nSlots := len(spec.Slots)
	for si, slot := range spec.Slots {
		for ci, c := range slot.Constraints {
			if !knownKinds[c.Kind] {
				add(si, ci, ErrUnknownKind, "unknown constraint kind %q", c.Kind)
				continue
			}
			if c.ErrorKind != "" && !knownErrorKinds[c.ErrorKind] {
				add(si, ci, ErrUnknownErrorKind, "unknown error_kind %q", c.ErrorKind)
			}

			switch c.Kind {
			case constraint.KindEndorsement:
				if c.Identity == "" && c.IdentityField == "" {
					add(si, ci, ErrMissingParameter, "endorsement needs identity or identity_field")
				}
				if c.Identity != "" && c.IdentityField != "" {
					add(si, ci, ErrConflictingParams, "endorsement declares both identity and identity_field")
				}
				if c.IdentityField != "" && slot.Type == "" {
					add(si, ci, ErrMissingParameter, "identity_field requires the slot to declare a type")
				}
			case constraint.KindDerivedAddress:
				if len(c.Seeds) == 0 {
					add(si, ci, ErrMissingParameter, "derived_address needs seeds")
				}
				if c.NonceField == "" {
					add(si, ci, ErrMissingParameter, "derived_address needs nonce_field")
				}
				for _, seed := range c.Seeds {
					if seed.Slot != constraint.NoSlotRef && seed.Slot >= nSlots {
						add(si, ci, ErrBadSlotReference, "seed references slot %d of %d", seed.Slot, nSlots)
					}
				}
			case constraint.KindRelationship:
				if c.Field == "" {
					add(si, ci, ErrMissingParameter, "relationship needs field")
				}
				if slot.Type == "" {
					add(si, ci, ErrMissingParameter, "relationship requires the slot to declare a type")
				}
				if c.OtherSlot < 0 || c.OtherSlot >= nSlots {
					add(si, ci, ErrBadSlotReference, "other_slot %d out of range (%d slots)", c.OtherSlot, nSlots)
				}
			case constraint.KindController:
				if c.Component == "" {
					add(si, ci, ErrMissingParameter, "controller needs component")
				}
			case constraint.KindFixedAddress:
				if c.Address.IsZero() {
					add(si, ci, ErrMissingParameter, "fixed_address needs address")
				}
			case constraint.KindCustomPredicate:
				if c.Predicate == "" {
					add(si, ci, ErrMissingParameter, "custom_predicate needs predicate")
				}
			case constraint.KindClose:
				if c.BeneficiarySlot < 0 || c.BeneficiarySlot >= nSlots {
					add(si, ci, ErrBadSlotReference, "beneficiary_slot %d out of range (%d slots)", c.BeneficiarySlot, nSlots)
				}
			}
		}
	}
	return errs
}

// Warnings reports authoring smells that are not errors. An un-annotated
// slot passes every evaluation trivially, since the engine never invents
// implicit checks, so a slot with neither a type nor constraints is almost
// always a mistake worth surfacing when specs are loaded.
func Warnings(spec *constraint.Spec) []string {
	var warns []string
	for si, slot := range spec.Slots {
		if slot.Type == "" && len(slot.Constraints) == 0 {
			warns = append(warns, fmt.Sprintf(
				"%s.slots[%d] (%s): no type and no constraints; this slot is accepted without any validation",
				spec.Operation, si, slot.Role))
		}
	}
	return warns
}
