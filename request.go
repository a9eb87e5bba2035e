package ledgergate

import (
	"encoding/hex"

	"github.com/castkeep/ledgergate/canon"
	"github.com/castkeep/ledgergate/fault"
	"github.com/castkeep/ledgergate/record"
)

// SlotRef is one resource reference in an operation request.
type SlotRef struct {
	Address      record.Address
	DeclaredRole string
}

// Request is an already-assembled operation request. The engine does not
// fetch, sign, or broadcast anything itself; collaborators deliver the
// resource references, endorsements, and payload fully formed.
//
// Payload is a canonical-JSON object of operation arguments, opaque to the
// evaluation battery.
type Request struct {
	OperationType string
	Slots         []SlotRef
	Endorsements  []record.Endorsement
	Payload       []byte
}

// Digest computes the bytes an endorsement signs: a domain-separated hash of
// the canonical encoding of the operation type, the slot addresses in order,
// and the payload.
//
// The endorsement set itself and the operation token are excluded: the
// digest identifies what is being authorized, not who authorized it or when
// it was processed.
func (r Request) Digest() ([]byte, error) {
	slots := make([]any, len(r.Slots))
	for i, s := range r.Slots {
		slots[i] = s.Address.String()
	}
	canonical, err := canon.Marshal(map[string]any{
		"operation": r.OperationType,
		"slots":     slots,
		"payload":   hex.EncodeToString(r.Payload),
	})
	if err != nil {
		return nil, err
	}
	sum := canon.HashWithDomain(canon.DomainRequest, canonical)
	return sum[:], nil
}

// Verdict is the terminal state of an evaluated operation.
type Verdict string

const (
	// VerdictAccepted means every constraint passed and the full effect set
	// committed.
	VerdictAccepted Verdict = "accepted"
	// VerdictRejected means a constraint or the handler failed; nothing was
	// applied.
	VerdictRejected Verdict = "rejected"
)

// EffectReport describes one applied effect in an accepted response.
type EffectReport struct {
	Kind    string
	Address string
	Target  string
}

// Response reports the outcome of one operation. Rejections carry the stable
// error kind and the offending slot index so callers can branch without
// parsing messages.
type Response struct {
	OperationID string
	Verdict     Verdict

	// Accepted only.
	Effects []EffectReport

	// Rejected only.
	ErrorKind fault.Kind
	Slot      int
	Code      string
	Message   string
}
