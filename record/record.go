// Package record defines the ledger data model: addresses, type tags,
// identities, endorsements, and the resource record itself.
package record

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AddressSize is the byte length of a ledger address.
const AddressSize = 32

// TypeTagSize is the byte length of a type tag.
const TypeTagSize = 8

// Address identifies a resource record on the ledger.
type Address [AddressSize]byte

// ParseAddress decodes a 64-character hex string into an Address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(raw) != AddressSize {
		return a, fmt.Errorf("parse address: got %d bytes, want %d", len(raw), AddressSize)
	}
	copy(a[:], raw)
	return a, nil
}

// AddressFromBytes copies a 32-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("address from bytes: got %d bytes, want %d", len(b), AddressSize)
	}
	copy(a[:], b)
	return a, nil
}

// String returns the lowercase hex encoding of the address.
func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether the address is all zero bytes.
func (a Address) IsZero() bool { return a == Address{} }

// TypeTag identifies a resource record's logical schema.
// It is checked before any payload interpretation.
type TypeTag [TypeTagSize]byte

// String returns the hex encoding of the tag.
func (t TypeTag) String() string { return hex.EncodeToString(t[:]) }

// ComponentID names a logical component that can control records and be the
// target of external invocations.
type ComponentID string

// NeutralController is the unowned controller a closed record is reassigned
// to. Records controlled by it hold no payload and grant no authority.
const NeutralController ComponentID = "component.neutral"

// Identity is a cryptographic identity in "alg:hex" form.
// Supported algorithms: "ed25519" and "dilithium3".
type Identity string

// Alg returns the algorithm prefix of the identity, or "" if malformed.
func (id Identity) Alg() string {
	alg, _, ok := strings.Cut(string(id), ":")
	if !ok {
		return ""
	}
	return alg
}

// KeyBytes returns the decoded public key bytes of the identity.
func (id Identity) KeyBytes() ([]byte, error) {
	_, enc, ok := strings.Cut(string(id), ":")
	if !ok {
		return nil, fmt.Errorf("identity %q: missing algorithm prefix", id)
	}
	key, err := hex.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("identity %q: invalid hex key: %w", id, err)
	}
	return key, nil
}

// Endorsement is a cryptographic proof, scoped to one request, that an
// identity authorized it. The signature covers the request digest.
type Endorsement struct {
	Identity  Identity
	Signature []byte
}

// ResourceRecord is a unit of shared, addressable, owned state.
//
// Payload is opaque to the engine and interpreted only after the type tag
// has been verified. Exactly one controlling component owns a record at a
// time; a closed record is reassigned to NeutralController with a zeroed
// payload.
type ResourceRecord struct {
	Address    Address
	Controller ComponentID
	TypeTag    TypeTag
	Payload    []byte
	Mutable    bool
}

// Clone returns a deep copy of the record. Snapshots hand out clones so that
// constraint evaluation can never observe in-flight mutation.
func (r *ResourceRecord) Clone() *ResourceRecord {
	if r == nil {
		return nil
	}
	dup := *r
	dup.Payload = bytes.Clone(r.Payload)
	return &dup
}

// Fields decodes the payload as a JSON object. Callers must verify the type
// tag first; the engine enforces this ordering in constraint evaluation.
// Numbers are preserved as json.Number to avoid float coercion.
func (r *ResourceRecord) Fields() (map[string]any, error) {
	if len(r.Payload) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode payload fields: %w", err)
	}
	return fields, nil
}

// FieldString returns a string-valued payload field.
func (r *ResourceRecord) FieldString(name string) (string, error) {
	fields, err := r.Fields()
	if err != nil {
		return "", err
	}
	v, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("payload field %q not present", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q is %T, want string", name, v)
	}
	return s, nil
}

// FieldUint returns an unsigned integer payload field.
func (r *ResourceRecord) FieldUint(name string) (uint64, error) {
	fields, err := r.Fields()
	if err != nil {
		return 0, err
	}
	v, ok := fields[name]
	if !ok {
		return 0, fmt.Errorf("payload field %q not present", name)
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, fmt.Errorf("payload field %q is %T, want number", name, v)
	}
	u, err := parseUint(num)
	if err != nil {
		return 0, fmt.Errorf("payload field %q: %w", name, err)
	}
	return u, nil
}

func parseUint(num json.Number) (uint64, error) {
	s := num.String()
	if strings.ContainsAny(s, ".eE") {
		return 0, fmt.Errorf("non-integer number %q", s)
	}
	return strconv.ParseUint(s, 10, 64)
}
