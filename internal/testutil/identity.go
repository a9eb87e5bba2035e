// Package testutil provides deterministic helpers for engine tests:
// reproducible identities, direct store seeding, and stable addresses.
package testutil

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"

	"github.com/castkeep/ledgergate/record"
)

// Signer endorses request digests for one test identity. The keypair is
// derived from a seed string, so the same seed always yields the same
// identity across runs.
type Signer struct {
	Identity record.Identity
	sign     func(digest []byte) []byte
}

// NewEd25519Signer derives a deterministic ed25519 signer from a seed string.
func NewEd25519Signer(t *testing.T, seed string) *Signer {
	t.Helper()
	sum := sha256.Sum256([]byte("testutil/ed25519/" + seed))
	priv := ed25519.NewKeyFromSeed(sum[:])
	pub := priv.Public().(ed25519.PublicKey)
	return &Signer{
		Identity: record.Identity("ed25519:" + hex.EncodeToString(pub)),
		sign: func(digest []byte) []byte {
			return ed25519.Sign(priv, digest)
		},
	}
}

// NewDilithiumSigner derives a deterministic dilithium3 signer from a seed
// string.
func NewDilithiumSigner(t *testing.T, seed string) *Signer {
	t.Helper()
	var keySeed [mode3.SeedSize]byte
	sum := sha256.Sum256([]byte("testutil/dilithium3/" + seed))
	copy(keySeed[:], sum[:])
	pub, priv := mode3.NewKeyFromSeed(&keySeed)

	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal dilithium3 public key: %v", err)
	}
	return &Signer{
		Identity: record.Identity("dilithium3:" + hex.EncodeToString(pubBytes)),
		sign: func(digest []byte) []byte {
			sig := make([]byte, mode3.SignatureSize)
			mode3.SignTo(priv, digest, sig)
			return sig
		},
	}
}

// Endorse signs the digest, producing a valid endorsement.
func (s *Signer) Endorse(digest []byte) record.Endorsement {
	return record.Endorsement{Identity: s.Identity, Signature: s.sign(digest)}
}

// EndorseWrongDigest produces a well-formed endorsement whose signature
// covers different bytes, so verification must fail without erroring.
func (s *Signer) EndorseWrongDigest(digest []byte) record.Endorsement {
	other := sha256.Sum256(append([]byte("not-the-request/"), digest...))
	return record.Endorsement{Identity: s.Identity, Signature: s.sign(other[:])}
}
