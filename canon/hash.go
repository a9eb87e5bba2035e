package canon

import "crypto/sha256"

// Domain prefixes for digest computation. The version suffix enables future
// algorithm migration without colliding with old digests.
const (
	DomainRequest = "ledgergate/request/v1"
	DomainAddress = "ledgergate/address/v1"
	DomainTypeTag = "ledgergate/typetag/v1"
)

// HashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator prevents domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
