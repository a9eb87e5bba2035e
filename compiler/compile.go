// Package compiler loads operation constraint specifications from CUE
// declarations and validates them at engine construction time.
//
// Declarations are static: the mapping from operation-type name to its
// ordered per-slot constraint list is fixed before the engine accepts any
// request. Specification errors are registration-time errors with stable
// E-codes, never runtime rejections.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/castkeep/ledgergate/constraint"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

// slotSeedPrefix references another slot's address in a seed list entry.
const slotSeedPrefix = "slot:"

// LoadDir compiles every *.cue file in dir into a single specification map.
// Duplicate operation types across files are an error (E203).
func LoadDir(dir string) (map[string]*constraint.Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read spec dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".cue") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	specs := make(map[string]*constraint.Spec)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read spec file %s: %w", name, err)
		}
		fileSpecs, err := CompileBytes(name, data)
		if err != nil {
			return nil, err
		}
		for op, spec := range fileSpecs {
			if _, dup := specs[op]; dup {
				return nil, ValidationError{
					Field:   op,
					Message: fmt.Sprintf("operation %q declared more than once", op),
					Code:    ErrDuplicateOperation,
				}
			}
			specs[op] = spec
		}
	}
	return specs, nil
}

// CompileBytes parses one CUE document holding an `operations` struct into
// constraint specifications, then validates them. All validation errors are
// reported together, not fail-fast.
func CompileBytes(filename string, data []byte) (map[string]*constraint.Spec, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}

	ops := v.LookupPath(cue.ParsePath("operations"))
	if !ops.Exists() {
		return nil, fmt.Errorf("compile %s: no `operations` struct", filename)
	}

	iter, err := ops.Fields()
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", filename, err)
	}

	specs := make(map[string]*constraint.Spec)
	var errs []ValidationError
	for iter.Next() {
		opName := strings.Trim(iter.Selector().String(), `"`)
		spec, err := compileSpec(opName, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("compile %s: operation %q: %w", filename, opName, err)
		}
		errs = append(errs, Validate(spec)...)
		specs[opName] = spec
	}

	if len(errs) > 0 {
		return nil, Errors(errs)
	}
	return specs, nil
}

func compileSpec(opName string, v cue.Value) (*constraint.Spec, error) {
	spec := &constraint.Spec{Operation: opName}

	slots := v.LookupPath(cue.ParsePath("slots"))
	if !slots.Exists() {
		return nil, fmt.Errorf("missing slots list")
	}
	iter, err := slots.List()
	if err != nil {
		return nil, fmt.Errorf("slots: %w", err)
	}
	for i := 0; iter.Next(); i++ {
		slot, err := compileSlot(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("slot[%d]: %w", i, err)
		}
		spec.Slots = append(spec.Slots, slot)
	}
	return spec, nil
}

func compileSlot(v cue.Value) (constraint.SlotSpec, error) {
	var slot constraint.SlotSpec
	var err error

	if slot.Role, err = optString(v, "role"); err != nil {
		return slot, err
	}
	if slot.Type, err = optString(v, "type"); err != nil {
		return slot, err
	}

	constraints := v.LookupPath(cue.ParsePath("constraints"))
	if !constraints.Exists() {
		return slot, nil
	}
	iter, err := constraints.List()
	if err != nil {
		return slot, fmt.Errorf("constraints: %w", err)
	}
	for i := 0; iter.Next(); i++ {
		c, err := compileConstraint(iter.Value())
		if err != nil {
			return slot, fmt.Errorf("constraints[%d]: %w", i, err)
		}
		slot.Constraints = append(slot.Constraints, c)
	}
	return slot, nil
}

func compileConstraint(v cue.Value) (constraint.Constraint, error) {
	var c constraint.Constraint

	kind, err := optString(v, "kind")
	if err != nil {
		return c, err
	}
	c.Kind = constraint.Kind(kind)

	identity, err := optString(v, "identity")
	if err != nil {
		return c, err
	}
	c.Identity = record.Identity(identity)

	if c.IdentityField, err = optString(v, "identity_field"); err != nil {
		return c, err
	}
	if c.NonceField, err = optString(v, "nonce_field"); err != nil {
		return c, err
	}
	component, err := optString(v, "component")
	if err != nil {
		return c, err
	}
	c.Component = record.ComponentID(component)

	if c.Field, err = optString(v, "field"); err != nil {
		return c, err
	}
	if c.Predicate, err = optString(v, "predicate"); err != nil {
		return c, err
	}
	if c.Code, err = optString(v, "code"); err != nil {
		return c, err
	}

	if c.OtherSlot, err = optInt(v, "other_slot", constraint.NoSlotRef); err != nil {
		return c, err
	}
	if c.BeneficiarySlot, err = optInt(v, "beneficiary_slot", constraint.NoSlotRef); err != nil {
		return c, err
	}

	addressHex, err := optString(v, "address")
	if err != nil {
		return c, err
	}
	if addressHex != "" {
		if c.Address, err = record.ParseAddress(addressHex); err != nil {
			return c, fmt.Errorf("address: %w", err)
		}
	}

	errorKind, err := optString(v, "error_kind")
	if err != nil {
		return c, err
	}
	c.ErrorKind = fault.Kind(errorKind)

	seeds := v.LookupPath(cue.ParsePath("seeds"))
	if seeds.Exists() {
		iter, err := seeds.List()
		if err != nil {
			return c, fmt.Errorf("seeds: %w", err)
		}
		for i := 0; iter.Next(); i++ {
			s, err := iter.Value().String()
			if err != nil {
				return c, fmt.Errorf("seeds[%d]: %w", i, err)
			}
			c.Seeds = append(c.Seeds, parseSeed(s))
		}
	}

	return c, nil
}

// parseSeed interprets "slot:N" entries as address references and everything
// else as a literal byte string.
func parseSeed(s string) constraint.SeedRef {
	if rest, ok := strings.CutPrefix(s, slotSeedPrefix); ok {
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 {
			return constraint.SeedRef{Slot: n}
		}
	}
	return constraint.SeedRef{Literal: s, Slot: constraint.NoSlotRef}
}

func optString(v cue.Value, name string) (string, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

func optInt(v cue.Value, name string, def int) (int, error) {
	f := v.LookupPath(cue.ParsePath(name))
	if !f.Exists() {
		return def, nil
	}
	n, err := f.Int64()
	if err != nil {
		return def, fmt.Errorf("%s: %w", name, err)
	}
	return int(n), nil
}
