// Package authz verifies cryptographic endorsements and controlling-process
// identity for resource records.
//
// An authorization context is constructed once per request from the request
// digest and the submitted endorsements, is immutable thereafter, and is
// discarded at request end. All checks are pure.
package authz

import (
	"crypto/ed25519"
	"fmt"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

// Context holds the set of identities that have proven, for one request,
// that they authorized it.
type Context struct {
	endorsed map[record.Identity]struct{}
}

// NewContext verifies each endorsement signature against the request digest
// and collects the identities whose proofs hold.
//
// A cryptographically invalid signature proves nothing: its identity is left
// out of the set, and any constraint requiring it later fails with
// MissingEndorsement. A malformed identity or signature encoding is a
// request-construction error and fails outright.
func NewContext(digest []byte, endorsements []record.Endorsement) (*Context, error) {
	ctx := &Context{endorsed: make(map[record.Identity]struct{}, len(endorsements))}
	for i, e := range endorsements {
		ok, err := verifySignature(e.Identity, digest, e.Signature)
		if err != nil {
			return nil, fmt.Errorf("endorsement[%d]: %w", i, err)
		}
		if ok {
			ctx.endorsed[e.Identity] = struct{}{}
		}
	}
	return ctx, nil
}

// Endorsed reports whether the identity proved authorization of this request.
func (c *Context) Endorsed(id record.Identity) bool {
	_, ok := c.endorsed[id]
	return ok
}

// Count returns the number of proven identities, for logging.
func (c *Context) Count() int { return len(c.endorsed) }

// verifySignature checks a signature over the digest for the identity's
// algorithm. Supported encodings mirror the identity format: ed25519 and
// dilithium3.
func verifySignature(id record.Identity, digest, sig []byte) (bool, error) {
	key, err := id.KeyBytes()
	if err != nil {
		return false, err
	}
	switch id.Alg() {
	case "ed25519":
		if len(key) != ed25519.PublicKeySize {
			return false, fmt.Errorf("identity %q: invalid ed25519 public key length %d", id, len(key))
		}
		if len(sig) != ed25519.SignatureSize {
			return false, fmt.Errorf("identity %q: invalid ed25519 signature length %d", id, len(sig))
		}
		return ed25519.Verify(ed25519.PublicKey(key), digest, sig), nil
	case "dilithium3":
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(key); err != nil {
			return false, fmt.Errorf("identity %q: invalid dilithium3 public key: %w", id, err)
		}
		if len(sig) != mode3.SignatureSize {
			return false, fmt.Errorf("identity %q: invalid dilithium3 signature length %d", id, len(sig))
		}
		return mode3.Verify(&pk, digest, sig), nil
	default:
		return false, fmt.Errorf("identity %q: unsupported algorithm %q", id, id.Alg())
	}
}

// RequireEndorsement fails with MissingEndorsement unless the identity is in
// the proven set.
func RequireEndorsement(ctx *Context, id record.Identity) error {
	if !ctx.Endorsed(id) {
		return fault.New(fault.MissingEndorsement, "identity %s did not endorse this request", id)
	}
	return nil
}

// RequireController fails with InvalidController unless the record is
// controlled by the expected component.
func RequireController(rec *record.ResourceRecord, expected record.ComponentID) error {
	if rec.Controller != expected {
		return fault.New(fault.InvalidController,
			"record %s controlled by %s, want %s", rec.Address, rec.Controller, expected)
	}
	return nil
}
