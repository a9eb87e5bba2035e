// Package addr computes deterministic resource addresses from seed material.
//
// A derived address must never itself be an endorsable identity: the search
// rejects any candidate that decodes as a valid edwards25519 point, so no
// private key can exist for a derived address and it can never produce a
// forged endorsement.
package addr

import (
	"crypto/sha256"
	"encoding/binary"

	"filippo.io/edwards25519"

	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

// nonceSpace is the size of the one-byte nonce search space.
const nonceSpace = 256

// Derive searches for the first nonce, descending from 255, whose candidate
// address is not a valid identity encoding. Returns the address and the
// winning nonce.
//
// The search is an explicit bounded loop: exhausting all 256 nonces fails
// with DerivationExhausted, which indicates a specification bug and must
// never be silently retried with altered seeds.
func Derive(seeds [][]byte, component record.ComponentID) (record.Address, uint8, error) {
	for i := nonceSpace - 1; i >= 0; i-- {
		nonce := uint8(i)
		candidate := candidateAddress(seeds, nonce, component)
		if offCurve(candidate) {
			return candidate, nonce, nil
		}
	}
	return record.Address{}, 0, fault.New(fault.DerivationExhausted,
		"no usable nonce in %d-value search space for component %s", nonceSpace, component)
}

// Verify recomputes the candidate for the given seeds and nonce and reports
// whether it matches the claimed address. The off-curve property is
// re-checked: a claimed address that is a valid identity encoding never
// verifies, regardless of hash agreement.
func Verify(address record.Address, seeds [][]byte, nonce uint8, component record.ComponentID) bool {
	if !offCurve(address) {
		return false
	}
	return candidateAddress(seeds, nonce, component) == address
}

// candidateAddress hashes the derivation inputs with domain separation.
// Each seed is length-prefixed so that seed boundaries are unambiguous:
// ["ab","c"] and ["a","bc"] produce different addresses.
func candidateAddress(seeds [][]byte, nonce uint8, component record.ComponentID) record.Address {
	h := sha256.New()
	h.Write([]byte(canon.DomainAddress))
	h.Write([]byte{0x00})

	var lenBuf [binary.MaxVarintLen64]byte
	for _, seed := range seeds {
		n := binary.PutUvarint(lenBuf[:], uint64(len(seed)))
		h.Write(lenBuf[:n])
		h.Write(seed)
	}
	h.Write([]byte{0xff, nonce})
	h.Write([]byte(component))

	var a record.Address
	copy(a[:], h.Sum(nil))
	return a
}

// offCurve reports whether the 32 bytes are NOT a valid edwards25519 point
// encoding. Roughly half of all candidates decode successfully, so the
// descending search almost always terminates within a few nonces.
func offCurve(a record.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err != nil
}
