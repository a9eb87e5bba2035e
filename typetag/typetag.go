// Package typetag assigns and verifies the compact type tag embedded in each
// resource record.
//
// The tag is the only defense against a record of one logical type being
// substituted where another is expected; Verify must run before any payload
// field is interpreted as a typed structure.
package typetag

import (
	"fmt"
	"sync"

	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

var tagCache sync.Map // string -> record.TypeTag

// TagFor computes the 8-byte tag for a type's canonical name.
// Pure and memoized: the same name always yields the same tag.
func TagFor(typeName string) record.TypeTag {
	if cached, ok := tagCache.Load(typeName); ok {
		return cached.(record.TypeTag)
	}
	sum := canon.HashWithDomain(canon.DomainTypeTag, []byte(typeName))
	var tag record.TypeTag
	copy(tag[:], sum[:record.TypeTagSize])
	tagCache.Store(typeName, tag)
	return tag
}

// Registry maps registered type names to tags and rejects collisions.
//
// Two distinct declared types sharing a tag is a registration-time error,
// never a runtime one: an engine refuses to construct rather than run with
// an ambiguous tag.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]record.TypeTag
	byTag  map[record.TypeTag]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]record.TypeTag),
		byTag:  make(map[record.TypeTag]string),
	}
}

// Register assigns a tag to the type name. Registering the same name twice
// is a no-op; a tag collision between distinct names is an error.
func (r *Registry) Register(typeName string) (record.TypeTag, error) {
	tag := TagFor(typeName)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byName[typeName]; ok {
		return existing, nil
	}
	if holder, ok := r.byTag[tag]; ok {
		return record.TypeTag{}, fmt.Errorf(
			"type tag collision: %q and %q both hash to %s", holder, typeName, tag)
	}
	r.byName[typeName] = tag
	r.byTag[tag] = typeName
	return tag, nil
}

// Lookup returns the tag registered for the type name.
func (r *Registry) Lookup(typeName string) (record.TypeTag, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.byName[typeName]
	return tag, ok
}

// NameOf returns the type name registered for a tag, for diagnostics.
func (r *Registry) NameOf(tag record.TypeTag) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byTag[tag]
	return name, ok
}

// Verify fails with TypeTagMismatch unless the record carries the tag of the
// expected type.
func (r *Registry) Verify(rec *record.ResourceRecord, expectedType string) error {
	expected := TagFor(expectedType)
	if rec.TypeTag != expected {
		held := "unknown"
		if name, ok := r.NameOf(rec.TypeTag); ok {
			held = name
		}
		return fault.New(fault.TypeTagMismatch,
			"record %s carries tag %s (%s), want %s (%s)",
			rec.Address, rec.TypeTag, held, expected, expectedType)
	}
	return nil
}
